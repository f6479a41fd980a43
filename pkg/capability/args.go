package capability

import (
	"fmt"

	"github.com/harun/pymolagent/pkg/pymol"
)

// Args is the typed argument record of one capability. The set of
// implementations is closed: every Kind has exactly one record type.
type Args interface {
	Kind() Kind
	sealed()
}

type defaulter interface {
	applyDefaults()
}

type validator interface {
	Validate() error
}

// General

type EchoMessageArgs struct {
	Message string `json:"message" jsonschema_description:"Text to echo back."`
}

// Memory

type MemorySearchArgs struct {
	Query string `json:"query" jsonschema_description:"Words to look for; a note matches when it contains any of them."`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,default=5" jsonschema_description:"Maximum notes to return."`
}

func (a *MemorySearchArgs) applyDefaults() {
	if a.Limit == 0 {
		a.Limit = 5
	}
}

type MemoryRememberArgs struct {
	Content    string   `json:"content" jsonschema_description:"Fact or observation to keep for later sessions."`
	Importance *float64 `json:"importance,omitempty" jsonschema:"minimum=0,maximum=1,default=1" jsonschema_description:"Importance from 0 to 1."`
	Tags       []string `json:"tags,omitempty" jsonschema_description:"Optional labels."`
}

func (a *MemoryRememberArgs) applyDefaults() {
	if a.Importance == nil {
		v := 1.0
		a.Importance = &v
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
}

type MemoryContextArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"minimum=1,default=5" jsonschema_description:"Number of recent exchanges to include."`
}

func (a *MemoryContextArgs) applyDefaults() {
	if a.Limit == 0 {
		a.Limit = 5
	}
}

// PyMOL

type ExecutePyMOLCommandArgs struct {
	Command string `json:"command" jsonschema_description:"PyMOL command line, for example 'fetch 1ubq' or 'hide everything'."`
}

type LoadMoleculeArgs struct {
	FilePath string `json:"file_path" jsonschema_description:"Path to a structure file (PDB, MOL2, SDF, CIF)."`
}

type SetMolecularRepresentationArgs struct {
	ObjectName     string `json:"object_name" jsonschema_description:"Name of the loaded object or selection."`
	Representation string `json:"representation" jsonschema_description:"One of lines, sticks, spheres, surface, cartoon, ribbon."`
}

func (a SetMolecularRepresentationArgs) Validate() error {
	return pymol.ValidateRepresentation(a.Representation)
}

type ColorMoleculeArgs struct {
	ObjectName string `json:"object_name" jsonschema_description:"Name of the loaded object or selection."`
	Color      string `json:"color" jsonschema_description:"PyMOL color name or RGB hex such as 0xff8800."`
}

type ZoomToObjectArgs struct {
	ObjectName string `json:"object_name" jsonschema_description:"Name of the object to frame."`
}

type SaveViewImageArgs struct {
	Filename string `json:"filename" jsonschema_description:"Output PNG path."`
	Width    int    `json:"width,omitempty" jsonschema:"minimum=1,default=800" jsonschema_description:"Image width in pixels."`
	Height   int    `json:"height,omitempty" jsonschema:"minimum=1,default=600" jsonschema_description:"Image height in pixels."`
}

func (a *SaveViewImageArgs) applyDefaults() {
	if a.Width == 0 {
		a.Width = 800
	}
	if a.Height == 0 {
		a.Height = 600
	}
}

type GetMoleculeInfoArgs struct {
	Selection string `json:"selection,omitempty" jsonschema:"default=all" jsonschema_description:"PyMOL selection expression."`
}

func (a *GetMoleculeInfoArgs) applyDefaults() {
	if a.Selection == "" {
		a.Selection = "all"
	}
}

type ListLoadedObjectsArgs struct{}

// Vision

type AnalyzeMolecularImageArgs struct {
	ImagePath string `json:"image_path" jsonschema_description:"Path to a PNG, JPEG or GIF rendering."`
}

// Annotation places one text label on an image.
type Annotation struct {
	X     int    `json:"x,omitempty" jsonschema_description:"Left edge of the label in pixels."`
	Y     int    `json:"y,omitempty" jsonschema_description:"Top edge of the label in pixels."`
	Text  string `json:"text,omitempty" jsonschema_description:"Label text."`
	Color string `json:"color,omitempty" jsonschema:"default=red" jsonschema_description:"Color name or #rrggbb."`
}

type AnnotateMolecularImageArgs struct {
	ImagePath   string       `json:"image_path" jsonschema_description:"Path to the image to annotate."`
	Annotations []Annotation `json:"annotations" jsonschema_description:"Labels to draw."`
}

func (a *AnnotateMolecularImageArgs) applyDefaults() {
	for i := range a.Annotations {
		if a.Annotations[i].Color == "" {
			a.Annotations[i].Color = "red"
		}
	}
}

type CompareMolecularImagesArgs struct {
	Image1Path string `json:"image1_path" jsonschema_description:"Path to the first image."`
	Image2Path string `json:"image2_path" jsonschema_description:"Path to the second image."`
}

type GetImageInfoArgs struct {
	ImagePath string `json:"image_path" jsonschema_description:"Path to the image file."`
}

// Desktop

type GetDesktopInfoArgs struct{}

type FindApplicationWindowArgs struct {
	TitlePattern string `json:"title_pattern" jsonschema_description:"Case-insensitive text to find in window titles."`
}

type ActivateApplicationWindowArgs struct {
	Title string `json:"title" jsonschema_description:"Title, or part of the title, of the window to raise."`
}

type ClickAtCoordinatesArgs struct {
	X      int    `json:"x" jsonschema_description:"Screen X coordinate."`
	Y      int    `json:"y" jsonschema_description:"Screen Y coordinate."`
	Button string `json:"button,omitempty" jsonschema:"enum=left,enum=right,enum=middle,enum=double,default=left" jsonschema_description:"Mouse button."`
}

func (a *ClickAtCoordinatesArgs) applyDefaults() {
	if a.Button == "" {
		a.Button = "left"
	}
}

type TypeKeyboardTextArgs struct {
	Text     string   `json:"text" jsonschema_description:"Text to type into the focused window."`
	Interval *float64 `json:"interval,omitempty" jsonschema:"minimum=0,default=0.1" jsonschema_description:"Seconds between keystrokes."`
}

func (a *TypeKeyboardTextArgs) applyDefaults() {
	if a.Interval == nil {
		v := 0.1
		a.Interval = &v
	}
}

type PressKeyboardKeyArgs struct {
	Key string `json:"key" jsonschema_description:"Key or chord, for example 'enter', 'escape' or 'ctrl+c'."`
}

type CaptureScreenshotArgs struct {
	Filename string `json:"filename,omitempty" jsonschema_description:"Output path; defaults to a timestamped name."`
}

type GetCurrentMousePositionArgs struct{}

type DragMouseCoordinatesArgs struct {
	StartX   int      `json:"start_x" jsonschema_description:"Starting X coordinate."`
	StartY   int      `json:"start_y" jsonschema_description:"Starting Y coordinate."`
	EndX     int      `json:"end_x" jsonschema_description:"Ending X coordinate."`
	EndY     int      `json:"end_y" jsonschema_description:"Ending Y coordinate."`
	Duration *float64 `json:"duration,omitempty" jsonschema:"minimum=0,default=1" jsonschema_description:"Drag duration in seconds."`
}

func (a *DragMouseCoordinatesArgs) applyDefaults() {
	if a.Duration == nil {
		v := 1.0
		a.Duration = &v
	}
}

// GUI inspection

type InspectWindowHierarchyArgs struct {
	WindowTitle string `json:"window_title,omitempty" jsonschema_description:"Window to inspect; the active window when omitted."`
}

type FindClickableElementsArgs struct {
	WindowTitle string `json:"window_title,omitempty" jsonschema_description:"Window to inspect; the active window when omitted."`
}

type GetElementAtCoordinatesArgs struct {
	X int `json:"x" jsonschema_description:"Screen X coordinate."`
	Y int `json:"y" jsonschema_description:"Screen Y coordinate."`
}

type CaptureWindowStateArgs struct {
	WindowTitle string `json:"window_title,omitempty" jsonschema_description:"Window to capture; the active window when omitted."`
}

type ListVisibleWindowsArgs struct{}

type ScreenshotWindowArgs struct {
	WindowTitle string `json:"window_title,omitempty" jsonschema_description:"Window to capture; the active window when omitted."`
}

func (EchoMessageArgs) Kind() Kind                { return EchoMessage }
func (MemorySearchArgs) Kind() Kind               { return MemorySearch }
func (MemoryRememberArgs) Kind() Kind             { return MemoryRemember }
func (MemoryContextArgs) Kind() Kind              { return MemoryContext }
func (ExecutePyMOLCommandArgs) Kind() Kind        { return ExecutePyMOLCommand }
func (LoadMoleculeArgs) Kind() Kind               { return LoadMolecule }
func (SetMolecularRepresentationArgs) Kind() Kind { return SetMolecularRepresentation }
func (ColorMoleculeArgs) Kind() Kind              { return ColorMolecule }
func (ZoomToObjectArgs) Kind() Kind               { return ZoomToObject }
func (SaveViewImageArgs) Kind() Kind              { return SaveViewImage }
func (GetMoleculeInfoArgs) Kind() Kind            { return GetMoleculeInfo }
func (ListLoadedObjectsArgs) Kind() Kind          { return ListLoadedObjects }
func (AnalyzeMolecularImageArgs) Kind() Kind      { return AnalyzeMolecularImage }
func (AnnotateMolecularImageArgs) Kind() Kind     { return AnnotateMolecularImage }
func (CompareMolecularImagesArgs) Kind() Kind     { return CompareMolecularImages }
func (GetImageInfoArgs) Kind() Kind               { return GetImageInfo }
func (GetDesktopInfoArgs) Kind() Kind             { return GetDesktopInfo }
func (FindApplicationWindowArgs) Kind() Kind      { return FindApplicationWindow }
func (ActivateApplicationWindowArgs) Kind() Kind  { return ActivateApplicationWindow }
func (ClickAtCoordinatesArgs) Kind() Kind         { return ClickAtCoordinates }
func (TypeKeyboardTextArgs) Kind() Kind           { return TypeKeyboardText }
func (PressKeyboardKeyArgs) Kind() Kind           { return PressKeyboardKey }
func (CaptureScreenshotArgs) Kind() Kind          { return CaptureScreenshot }
func (GetCurrentMousePositionArgs) Kind() Kind    { return GetCurrentMousePosition }
func (DragMouseCoordinatesArgs) Kind() Kind       { return DragMouseCoordinates }
func (InspectWindowHierarchyArgs) Kind() Kind     { return InspectWindowHierarchy }
func (FindClickableElementsArgs) Kind() Kind      { return FindClickableElements }
func (GetElementAtCoordinatesArgs) Kind() Kind    { return GetElementAtCoordinates }
func (CaptureWindowStateArgs) Kind() Kind         { return CaptureWindowState }
func (ListVisibleWindowsArgs) Kind() Kind         { return ListVisibleWindows }
func (ScreenshotWindowArgs) Kind() Kind           { return ScreenshotWindow }

func (EchoMessageArgs) sealed()                {}
func (MemorySearchArgs) sealed()               {}
func (MemoryRememberArgs) sealed()             {}
func (MemoryContextArgs) sealed()              {}
func (ExecutePyMOLCommandArgs) sealed()        {}
func (LoadMoleculeArgs) sealed()               {}
func (SetMolecularRepresentationArgs) sealed() {}
func (ColorMoleculeArgs) sealed()              {}
func (ZoomToObjectArgs) sealed()               {}
func (SaveViewImageArgs) sealed()              {}
func (GetMoleculeInfoArgs) sealed()            {}
func (ListLoadedObjectsArgs) sealed()          {}
func (AnalyzeMolecularImageArgs) sealed()      {}
func (AnnotateMolecularImageArgs) sealed()     {}
func (CompareMolecularImagesArgs) sealed()     {}
func (GetImageInfoArgs) sealed()               {}
func (GetDesktopInfoArgs) sealed()             {}
func (FindApplicationWindowArgs) sealed()      {}
func (ActivateApplicationWindowArgs) sealed()  {}
func (ClickAtCoordinatesArgs) sealed()         {}
func (TypeKeyboardTextArgs) sealed()           {}
func (PressKeyboardKeyArgs) sealed()           {}
func (CaptureScreenshotArgs) sealed()          {}
func (GetCurrentMousePositionArgs) sealed()    {}
func (DragMouseCoordinatesArgs) sealed()       {}
func (InspectWindowHierarchyArgs) sealed()     {}
func (FindClickableElementsArgs) sealed()      {}
func (GetElementAtCoordinatesArgs) sealed()    {}
func (CaptureWindowStateArgs) sealed()         {}
func (ListVisibleWindowsArgs) sealed()         {}
func (ScreenshotWindowArgs) sealed()           {}

// ArgumentError reports call arguments that are well-formed but rejected.
// Its message is shown to the model unchanged.
type ArgumentError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}

func argumentError(kind Kind, cause error, format string, args ...any) error {
	return &ArgumentError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}
