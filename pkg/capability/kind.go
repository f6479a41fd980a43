package capability

// Kind names one capability. The string value is the name the model sees.
type Kind string

const (
	EchoMessage Kind = "echo_message"

	MemorySearch   Kind = "memory_search"
	MemoryRemember Kind = "memory_remember"
	MemoryContext  Kind = "memory_context"

	ExecutePyMOLCommand        Kind = "execute_pymol_command"
	LoadMolecule               Kind = "load_molecule"
	SetMolecularRepresentation Kind = "set_molecular_representation"
	ColorMolecule              Kind = "color_molecule"
	ZoomToObject               Kind = "zoom_to_object"
	SaveViewImage              Kind = "save_view_image"
	GetMoleculeInfo            Kind = "get_molecule_info"
	ListLoadedObjects          Kind = "list_loaded_objects"

	AnalyzeMolecularImage  Kind = "analyze_molecular_image"
	AnnotateMolecularImage Kind = "annotate_molecular_image"
	CompareMolecularImages Kind = "compare_molecular_images"
	GetImageInfo           Kind = "get_image_info"

	GetDesktopInfo            Kind = "get_desktop_info"
	FindApplicationWindow     Kind = "find_application_window"
	ActivateApplicationWindow Kind = "activate_application_window"
	ClickAtCoordinates        Kind = "click_at_coordinates"
	TypeKeyboardText          Kind = "type_keyboard_text"
	PressKeyboardKey          Kind = "press_keyboard_key"
	CaptureScreenshot         Kind = "capture_screenshot"
	GetCurrentMousePosition   Kind = "get_current_mouse_position"
	DragMouseCoordinates      Kind = "drag_mouse_coordinates"

	InspectWindowHierarchy  Kind = "inspect_window_hierarchy"
	FindClickableElements   Kind = "find_clickable_elements"
	GetElementAtCoordinates Kind = "get_element_at_coordinates"
	CaptureWindowState      Kind = "capture_window_state"
	ListVisibleWindows      Kind = "list_visible_windows"
	ScreenshotWindow        Kind = "screenshot_window"
)

// Group is the family a capability belongs to.
type Group string

const (
	GroupGeneral   Group = "general"
	GroupMemory    Group = "memory"
	GroupPyMOL     Group = "pymol"
	GroupVision    Group = "vision"
	GroupDesktop   Group = "desktop"
	GroupInspector Group = "inspector"
)

// All returns every kind in registration order.
func All() []Kind {
	out := make([]Kind, len(catalog))
	for i, e := range catalog {
		out[i] = e.kind
	}
	return out
}

// Parse maps a model-supplied name onto a Kind.
func Parse(name string) (Kind, bool) {
	_, ok := index[Kind(name)]
	return Kind(name), ok
}

// Group returns the family of k, or "" for an unknown kind.
func (k Kind) Group() Group {
	if i, ok := index[k]; ok {
		return catalog[i].group
	}
	return ""
}

func (k Kind) String() string {
	return string(k)
}
