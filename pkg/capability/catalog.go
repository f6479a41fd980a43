package capability

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// Spec describes one capability to a model provider.
type Spec struct {
	Kind        Kind           `json:"name"`
	Group       Group          `json:"group"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"input_schema"`
}

type entry struct {
	kind        Kind
	group       Group
	description string
	prototype   func() any
	decode      func(data []byte) (Args, error)
}

func define[T Args](kind Kind, group Group, description string) entry {
	return entry{
		kind:        kind,
		group:       group,
		description: description,
		prototype:   func() any { return new(T) },
		decode: func(data []byte) (Args, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			if d, ok := any(&v).(defaulter); ok {
				d.applyDefaults()
			}
			if vd, ok := any(v).(validator); ok {
				if err := vd.Validate(); err != nil {
					return nil, argumentError(kind, err, "%s", err.Error())
				}
			}
			return v, nil
		},
	}
}

var catalog = []entry{
	define[EchoMessageArgs](EchoMessage, GroupGeneral, "Echo a message for testing purposes"),

	define[MemorySearchArgs](MemorySearch, GroupMemory, "Search remembered notes from this and earlier sessions"),
	define[MemoryRememberArgs](MemoryRemember, GroupMemory, "Store a fact in long-term memory so it survives restarts"),
	define[MemoryContextArgs](MemoryContext, GroupMemory, "Show the most recent conversation notes with their times"),

	define[ExecutePyMOLCommandArgs](ExecutePyMOLCommand, GroupPyMOL, "Execute any PyMOL command and return the result"),
	define[LoadMoleculeArgs](LoadMolecule, GroupPyMOL, "Load a molecular structure file (PDB, MOL2, etc.) in PyMOL"),
	define[SetMolecularRepresentationArgs](SetMolecularRepresentation, GroupPyMOL, "Set molecular representation (lines, sticks, spheres, surface, cartoon, ribbon)"),
	define[ColorMoleculeArgs](ColorMolecule, GroupPyMOL, "Apply color to a molecular object"),
	define[ZoomToObjectArgs](ZoomToObject, GroupPyMOL, "Zoom camera to focus on a specific object"),
	define[SaveViewImageArgs](SaveViewImage, GroupPyMOL, "Save current PyMOL view as an image file"),
	define[GetMoleculeInfoArgs](GetMoleculeInfo, GroupPyMOL, "Get information about molecules and selections"),
	define[ListLoadedObjectsArgs](ListLoadedObjects, GroupPyMOL, "List all objects currently loaded in PyMOL"),

	define[AnalyzeMolecularImageArgs](AnalyzeMolecularImage, GroupVision, "Analyze a molecular image and extract visual features"),
	define[AnnotateMolecularImageArgs](AnnotateMolecularImage, GroupVision, "Add annotations to a molecular image"),
	define[CompareMolecularImagesArgs](CompareMolecularImages, GroupVision, "Compare two molecular images for similarity"),
	define[GetImageInfoArgs](GetImageInfo, GroupVision, "Get basic information about an image file"),

	define[GetDesktopInfoArgs](GetDesktopInfo, GroupDesktop, "Get desktop screen information and mouse position"),
	define[FindApplicationWindowArgs](FindApplicationWindow, GroupDesktop, "Find application windows matching a title pattern"),
	define[ActivateApplicationWindowArgs](ActivateApplicationWindow, GroupDesktop, "Activate and bring an application window to the foreground"),
	define[ClickAtCoordinatesArgs](ClickAtCoordinates, GroupDesktop, "Click at specified screen coordinates"),
	define[TypeKeyboardTextArgs](TypeKeyboardText, GroupDesktop, "Type text using the keyboard"),
	define[PressKeyboardKeyArgs](PressKeyboardKey, GroupDesktop, "Press a keyboard key"),
	define[CaptureScreenshotArgs](CaptureScreenshot, GroupDesktop, "Take a screenshot of the entire screen"),
	define[GetCurrentMousePositionArgs](GetCurrentMousePosition, GroupDesktop, "Get the current mouse cursor position"),
	define[DragMouseCoordinatesArgs](DragMouseCoordinates, GroupDesktop, "Drag mouse from start position to end position"),

	define[InspectWindowHierarchyArgs](InspectWindowHierarchy, GroupInspector, "Get the hierarchy of GUI elements in a window"),
	define[FindClickableElementsArgs](FindClickableElements, GroupInspector, "Find clickable elements in a window"),
	define[GetElementAtCoordinatesArgs](GetElementAtCoordinates, GroupInspector, "Get GUI element at specific screen coordinates"),
	define[CaptureWindowStateArgs](CaptureWindowState, GroupInspector, "Capture the current state of a window"),
	define[ListVisibleWindowsArgs](ListVisibleWindows, GroupInspector, "List all visible windows"),
	define[ScreenshotWindowArgs](ScreenshotWindow, GroupInspector, "Take a screenshot of a specific window"),
}

var index = func() map[Kind]int {
	m := make(map[Kind]int, len(catalog))
	for i, e := range catalog {
		m[e.kind] = i
	}
	return m
}()

type compiledSchema struct {
	raw       map[string]any
	validator *gojsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     map[Kind]compiledSchema
	schemasErr  error
)

// loadSchemas reflects and compiles every argument schema once.
func loadSchemas() (map[Kind]compiledSchema, error) {
	schemasOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}

		out := make(map[Kind]compiledSchema, len(catalog))
		for _, e := range catalog {
			raw, err := reflectSchema(reflector, e.prototype())
			if err != nil {
				schemasErr = fmt.Errorf("schema for %s: %w", e.kind, err)
				return
			}
			compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("compile schema for %s: %w", e.kind, err)
				return
			}
			out[e.kind] = compiledSchema{raw: raw, validator: compiled}
		}
		schemas = out
	})
	return schemas, schemasErr
}

func reflectSchema(reflector *jsonschema.Reflector, v any) (map[string]any, error) {
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	// providers and the validator want a bare object schema
	delete(raw, "$schema")
	delete(raw, "$id")
	if _, ok := raw["properties"]; !ok {
		raw["properties"] = map[string]any{}
	}
	return raw, nil
}

// Specs returns the catalog in registration order.
func Specs() []Spec {
	compiled, err := loadSchemas()
	if err != nil {
		panic(err)
	}
	out := make([]Spec, len(catalog))
	for i, e := range catalog {
		out[i] = Spec{
			Kind:        e.kind,
			Group:       e.group,
			Description: e.description,
			Schema:      cloneMap(compiled[e.kind].raw),
		}
	}
	return out
}

// SpecFor returns the spec of one kind.
func SpecFor(kind Kind) (Spec, bool) {
	i, ok := index[kind]
	if !ok {
		return Spec{}, false
	}
	return Specs()[i], true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			cp := make([]any, len(t))
			for i, item := range t {
				if mm, ok := item.(map[string]any); ok {
					cp[i] = cloneMap(mm)
				} else {
					cp[i] = item
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
