package toolexecutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestToolPolicy_IsToolAllowed_AllowAll tests allowing all capabilities with wildcard
func TestToolPolicy_IsToolAllowed_AllowAll(t *testing.T) {
	policy := &ToolPolicy{
		Allow: []string{"*"},
		Deny:  []string{},
	}

	assert.True(t, policy.IsToolAllowed("echo_message"))
	assert.True(t, policy.IsToolAllowed("load_molecule"))
	assert.True(t, policy.IsToolAllowed("click_at_coordinates"))
}

// TestToolPolicy_IsToolAllowed_DenyAll tests denying all capabilities with wildcard
func TestToolPolicy_IsToolAllowed_DenyAll(t *testing.T) {
	policy := &ToolPolicy{
		Allow: []string{"*"},
		Deny:  []string{"*"},
	}

	// Deny overrides allow
	assert.False(t, policy.IsToolAllowed("echo_message"))
	assert.False(t, policy.IsToolAllowed("load_molecule"))
}

func TestToolPolicy_IsToolAllowed_SpecificAllow(t *testing.T) {
	policy := &ToolPolicy{
		Allow: []string{"load_molecule", "zoom_to_object"},
	}

	assert.True(t, policy.IsToolAllowed("load_molecule"))
	assert.True(t, policy.IsToolAllowed("zoom_to_object"))
	assert.False(t, policy.IsToolAllowed("execute_pymol_command"))
}

func TestToolPolicy_IsToolAllowed_DenyOverridesAllow(t *testing.T) {
	policy := &ToolPolicy{
		Allow: []string{"*"},
		Deny:  []string{"execute_pymol_command", "type_keyboard_text"},
	}

	assert.True(t, policy.IsToolAllowed("load_molecule"))
	assert.False(t, policy.IsToolAllowed("execute_pymol_command"))
	assert.False(t, policy.IsToolAllowed("type_keyboard_text"))
}

func TestToolPolicy_IsToolAllowed_Groups(t *testing.T) {
	policy := &ToolPolicy{
		Allow: []string{"group:pymol", "group:memory", "capture_screenshot"},
		Deny:  []string{"execute_pymol_command"},
	}

	assert.True(t, policy.IsToolAllowed("load_molecule"))
	assert.True(t, policy.IsToolAllowed("memory_search"))
	assert.True(t, policy.IsToolAllowed("capture_screenshot"))
	assert.False(t, policy.IsToolAllowed("execute_pymol_command"))
	assert.False(t, policy.IsToolAllowed("click_at_coordinates"))
	assert.False(t, policy.IsToolAllowed("unknown_tool"))
}

func TestToolPolicy_IsToolAllowed_DenyGroup(t *testing.T) {
	policy := &ToolPolicy{
		Allow: []string{"*"},
		Deny:  []string{"group:desktop", "group:inspector"},
	}

	assert.True(t, policy.IsToolAllowed("analyze_molecular_image"))
	assert.False(t, policy.IsToolAllowed("press_keyboard_key"))
	assert.False(t, policy.IsToolAllowed("list_visible_windows"))
}

func TestToolPolicy_IsToolAllowed_NilPolicy(t *testing.T) {
	var policy *ToolPolicy
	assert.True(t, policy.IsToolAllowed("anything"))
}

func TestToolPolicy_IsToolAllowed_EmptyAllow(t *testing.T) {
	policy := &ToolPolicy{}
	assert.False(t, policy.IsToolAllowed("echo_message"))
}

func TestValidatePolicy(t *testing.T) {
	assert.Nil(t, ValidatePolicy(nil))
	assert.Empty(t, ValidatePolicy(&ToolPolicy{Allow: []string{"*"}, Deny: []string{"group:desktop"}}))

	warnings := ValidatePolicy(&ToolPolicy{
		Allow: []string{"*", "load_molecul", "group:chemistry"},
		Deny:  []string{"*"},
	})
	assert.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "load_molecul")
	assert.Contains(t, warnings[1], "group:chemistry")
	assert.Contains(t, warnings[2], "wildcards")

	empty := ValidatePolicy(&ToolPolicy{})
	assert.Len(t, empty, 1)
	assert.Contains(t, empty[0], "empty allow list")
}

func TestMergePolicies(t *testing.T) {
	assert.Nil(t, MergePolicies())
	assert.Nil(t, MergePolicies(nil, nil))

	single := &ToolPolicy{Allow: []string{"*"}}
	assert.Same(t, single, MergePolicies(nil, single))

	merged := MergePolicies(
		&ToolPolicy{Allow: []string{"load_molecule", "zoom_to_object"}, Deny: []string{"type_keyboard_text"}},
		&ToolPolicy{Allow: []string{"zoom_to_object", "echo_message"}, Deny: []string{"press_keyboard_key", "type_keyboard_text"}},
	)
	assert.Equal(t, []string{"zoom_to_object"}, merged.Allow)
	assert.Equal(t, []string{"type_keyboard_text", "press_keyboard_key"}, merged.Deny)
}

func TestMergePolicies_Wildcards(t *testing.T) {
	merged := MergePolicies(
		&ToolPolicy{Allow: []string{"*"}},
		&ToolPolicy{Allow: []string{"load_molecule"}},
	)
	assert.Equal(t, []string{"load_molecule"}, merged.Allow)

	merged = MergePolicies(
		&ToolPolicy{Allow: []string{"load_molecule"}},
		&ToolPolicy{Allow: []string{"*"}},
	)
	assert.Equal(t, []string{"load_molecule"}, merged.Allow)
}

func TestFilterToolsByPolicy(t *testing.T) {
	tools := []string{"echo_message", "load_molecule", "click_at_coordinates"}

	assert.Equal(t, tools, FilterToolsByPolicy(tools, nil))
	assert.Equal(t, []string{"echo_message", "load_molecule"},
		FilterToolsByPolicy(tools, &ToolPolicy{Allow: []string{"*"}, Deny: []string{"group:desktop"}}))
}
