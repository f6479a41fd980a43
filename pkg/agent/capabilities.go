package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/pymolagent/pkg/capability"
	"github.com/harun/pymolagent/pkg/desktop"
	"github.com/harun/pymolagent/pkg/memory"
	"github.com/harun/pymolagent/pkg/pymol"
	"github.com/harun/pymolagent/pkg/toolexecutor"
	"github.com/harun/pymolagent/pkg/vision"
)

// Deps are the backends capability handlers call into. A nil backend
// leaves its group unregistered. Vision needs no backend and is always
// registered.
type Deps struct {
	Memory    *memory.Manager
	PyMOL     *pymol.Executor
	Desktop   *desktop.Controller
	Inspector *desktop.Inspector
}

// RegisterDefaultCapabilities binds every capability kind that deps can
// serve to its handler on exec.
func RegisterDefaultCapabilities(exec *toolexecutor.Executor, deps Deps) error {
	handlers := map[capability.Kind]toolexecutor.Handler{
		capability.EchoMessage: echoHandler,

		capability.AnalyzeMolecularImage:  analyzeImageHandler,
		capability.AnnotateMolecularImage: annotateImageHandler,
		capability.CompareMolecularImages: compareImagesHandler,
		capability.GetImageInfo:           imageInfoHandler,
	}

	if deps.Memory != nil {
		for kind, h := range memoryHandlers(deps.Memory) {
			handlers[kind] = h
		}
	}
	if deps.PyMOL != nil {
		for kind, h := range pymolHandlers(deps.PyMOL) {
			handlers[kind] = h
		}
	}
	if deps.Desktop != nil {
		for kind, h := range desktopHandlers(deps.Desktop) {
			handlers[kind] = h
		}
	}
	if deps.Inspector != nil {
		for kind, h := range inspectorHandlers(deps.Inspector) {
			handlers[kind] = h
		}
	}

	// Register in catalog order so failures are deterministic.
	for _, kind := range capability.All() {
		h, ok := handlers[kind]
		if !ok {
			continue
		}
		if err := exec.Register(kind, h); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return nil
}

func echoHandler(_ context.Context, args capability.Args) (capability.Result, error) {
	a := args.(capability.EchoMessageArgs)
	return capability.OK(map[string]any{"message": "Echo: " + a.Message}, ""), nil
}

func memoryHandlers(m *memory.Manager) map[capability.Kind]toolexecutor.Handler {
	return map[capability.Kind]toolexecutor.Handler{
		capability.MemorySearch: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.MemorySearchArgs)
			items := m.SearchMemoryContext(ctx, a.Query, a.Limit)
			return structured(map[string]any{
				"query":   a.Query,
				"count":   len(items),
				"results": items,
			}, "")
		},
		capability.MemoryRemember: func(_ context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.MemoryRememberArgs)
			m.AddLongTerm(a.Content, memory.WithImportance(*a.Importance), memory.WithTags(a.Tags...))
			return capability.OK("Remembered: "+a.Content, ""), nil
		},
		capability.MemoryContext: func(_ context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.MemoryContextArgs)
			return capability.OK(m.GetContext(a.Limit), ""), nil
		},
	}
}

func pymolHandlers(p *pymol.Executor) map[capability.Kind]toolexecutor.Handler {
	return map[capability.Kind]toolexecutor.Handler{
		capability.ExecutePyMOLCommand: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return fromPyMOL(p.ExecuteCommand(ctx, args.(capability.ExecutePyMOLCommandArgs).Command)), nil
		},
		capability.LoadMolecule: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return fromPyMOL(p.LoadStructure(ctx, args.(capability.LoadMoleculeArgs).FilePath)), nil
		},
		capability.SetMolecularRepresentation: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.SetMolecularRepresentationArgs)
			return fromPyMOL(p.SetRepresentation(ctx, a.ObjectName, a.Representation)), nil
		},
		capability.ColorMolecule: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.ColorMoleculeArgs)
			return fromPyMOL(p.ColorObject(ctx, a.ObjectName, a.Color)), nil
		},
		capability.ZoomToObject: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return fromPyMOL(p.ZoomObject(ctx, args.(capability.ZoomToObjectArgs).ObjectName)), nil
		},
		capability.SaveViewImage: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.SaveViewImageArgs)
			return fromPyMOL(p.SaveImage(ctx, a.Filename, a.Width, a.Height)), nil
		},
		capability.GetMoleculeInfo: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return fromPyMOL(p.GetSelectionInfo(ctx, args.(capability.GetMoleculeInfoArgs).Selection)), nil
		},
		capability.ListLoadedObjects: func(ctx context.Context, _ capability.Args) (capability.Result, error) {
			return fromPyMOL(p.GetObjectList(ctx)), nil
		},
	}
}

func fromPyMOL(r pymol.Result) capability.Result {
	if !r.Success {
		return capability.Fail(r.Error, r.Command)
	}
	return capability.OK(r.Output, r.Command)
}

func analyzeImageHandler(_ context.Context, args capability.Args) (capability.Result, error) {
	analysis, err := vision.Analyze(args.(capability.AnalyzeMolecularImageArgs).ImagePath)
	if err != nil {
		return capability.Result{}, err
	}
	return structured(analysis, "")
}

func annotateImageHandler(_ context.Context, args capability.Args) (capability.Result, error) {
	a := args.(capability.AnnotateMolecularImageArgs)
	annotations := make([]vision.Annotation, 0, len(a.Annotations))
	for _, an := range a.Annotations {
		annotations = append(annotations, vision.Annotation{X: an.X, Y: an.Y, Text: an.Text, Color: an.Color})
	}
	result, err := vision.Annotate(a.ImagePath, annotations)
	if err != nil {
		return capability.Result{}, err
	}
	return structured(result, "")
}

func compareImagesHandler(_ context.Context, args capability.Args) (capability.Result, error) {
	a := args.(capability.CompareMolecularImagesArgs)
	comparison, err := vision.Compare(a.Image1Path, a.Image2Path)
	if err != nil {
		return capability.Result{}, err
	}
	return structured(comparison, "")
}

func imageInfoHandler(_ context.Context, args capability.Args) (capability.Result, error) {
	info, err := vision.Info(args.(capability.GetImageInfoArgs).ImagePath)
	if err != nil {
		return capability.Result{}, err
	}
	return structured(info, "")
}

func desktopHandlers(c *desktop.Controller) map[capability.Kind]toolexecutor.Handler {
	return map[capability.Kind]toolexecutor.Handler{
		capability.GetDesktopInfo: func(ctx context.Context, _ capability.Args) (capability.Result, error) {
			return structuredErr(c.ScreenInfo(ctx))
		},
		capability.FindApplicationWindow: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(c.FindWindows(ctx, args.(capability.FindApplicationWindowArgs).TitlePattern))
		},
		capability.ActivateApplicationWindow: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(c.ActivateWindow(ctx, args.(capability.ActivateApplicationWindowArgs).Title))
		},
		capability.ClickAtCoordinates: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.ClickAtCoordinatesArgs)
			return structuredErr(c.Click(ctx, a.X, a.Y, a.Button))
		},
		capability.TypeKeyboardText: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.TypeKeyboardTextArgs)
			return structuredErr(c.TypeText(ctx, a.Text, seconds(*a.Interval)))
		},
		capability.PressKeyboardKey: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(c.PressKey(ctx, args.(capability.PressKeyboardKeyArgs).Key))
		},
		capability.CaptureScreenshot: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(c.Screenshot(ctx, args.(capability.CaptureScreenshotArgs).Filename))
		},
		capability.GetCurrentMousePosition: func(ctx context.Context, _ capability.Args) (capability.Result, error) {
			return structuredErr(c.MousePosition(ctx))
		},
		capability.DragMouseCoordinates: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.DragMouseCoordinatesArgs)
			return structuredErr(c.Drag(ctx, a.StartX, a.StartY, a.EndX, a.EndY, seconds(*a.Duration)))
		},
	}
}

func inspectorHandlers(i *desktop.Inspector) map[capability.Kind]toolexecutor.Handler {
	return map[capability.Kind]toolexecutor.Handler{
		capability.InspectWindowHierarchy: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(i.WindowHierarchy(ctx, args.(capability.InspectWindowHierarchyArgs).WindowTitle))
		},
		capability.FindClickableElements: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(i.ClickableElements(ctx, args.(capability.FindClickableElementsArgs).WindowTitle))
		},
		capability.GetElementAtCoordinates: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			a := args.(capability.GetElementAtCoordinatesArgs)
			return structuredErr(i.ElementAt(ctx, a.X, a.Y))
		},
		capability.CaptureWindowState: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(i.CaptureWindowState(ctx, args.(capability.CaptureWindowStateArgs).WindowTitle))
		},
		capability.ListVisibleWindows: func(ctx context.Context, _ capability.Args) (capability.Result, error) {
			return structuredErr(i.ListWindows(ctx))
		},
		capability.ScreenshotWindow: func(ctx context.Context, args capability.Args) (capability.Result, error) {
			return structuredErr(i.WindowScreenshot(ctx, args.(capability.ScreenshotWindowArgs).WindowTitle))
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// structured returns v as a successful result whose output is v's JSON
// object, so its fields reach the model as top-level keys.
func structured(v any, command string) (capability.Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return capability.Result{}, fmt.Errorf("encode result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return capability.Result{}, fmt.Errorf("encode result: %w", err)
	}
	return capability.OK(out, command), nil
}

func structuredErr[T any](v T, err error) (capability.Result, error) {
	if err != nil {
		return capability.Result{}, err
	}
	return structured(v, "")
}
