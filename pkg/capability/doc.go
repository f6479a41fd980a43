// Package capability defines the closed set of operations the model may
// invoke. Each Kind has exactly one typed argument record; raw call arguments
// are validated against the record's JSON schema and decoded before any
// handler sees them.
//
// Usage:
//
//	args, err := capability.Decode("load_molecule", map[string]any{"file_path": "1ubq.pdb"})
//	if err != nil {
//		return capability.Fail(err.Error(), "")
//	}
//	load := args.(capability.LoadMoleculeArgs)
package capability
