//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"syscall/js"

	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
)

var (
	eng     *layout.Engine
	cache   *silhouette.Cache
	pending = map[string]*silhouette.Bitmap{}
)

func main() {
	eng = layout.New(nil, nil)
	cache = newCache(silhouette.DefaultThreshold)

	collagist := js.Global().Get("Object").New()

	// --- Tracing ---
	collagist.Set("trace", js.FuncOf(trace))
	collagist.Set("setThreshold", js.FuncOf(setThreshold))

	// --- Board commands (frontend → engine) ---
	collagist.Set("loadBoard", js.FuncOf(loadBoard))
	collagist.Set("setShape", js.FuncOf(setShape))
	collagist.Set("activate", js.FuncOf(activate))
	collagist.Set("deactivate", js.FuncOf(deactivate))
	collagist.Set("move", js.FuncOf(move))
	collagist.Set("rotate", js.FuncOf(rotate))
	collagist.Set("reorder", js.FuncOf(reorder))
	collagist.Set("deleteAll", js.FuncOf(deleteAll))

	// --- Queries (frontend ← engine) ---
	collagist.Set("getStack", js.FuncOf(getStack))
	collagist.Set("hitTest", js.FuncOf(hitTest))
	collagist.Set("overlapping", js.FuncOf(overlapping))

	js.Global().Set("collagistEngine", collagist)
	js.Global().Set("collagistWasmReady", js.ValueOf(true))

	select {}
}

func newCache(threshold uint8) *silhouette.Cache {
	return silhouette.NewCache(silhouette.DecoderFunc(func(ctx context.Context, id string) (*silhouette.Bitmap, error) {
		bm, ok := pending[id]
		if !ok {
			return nil, fmt.Errorf("no pixels for %s", id)
		}
		delete(pending, id)
		return bm, nil
	}), silhouette.WithThreshold(threshold))
}

func errorResult(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func okResult() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func jsonResult(v any) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(string(data))
}

// trace(id, width, height, rgba Uint8ClampedArray) → JSON silhouette.
// Results are memoized per id.
func trace(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult(fmt.Errorf("usage: trace(id, width, height, rgba)"))
	}
	id := args[0].String()

	if _, ok := cache.Peek(id); !ok {
		w, h := args[1].Int(), args[2].Int()
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		if n := js.CopyBytesToGo(img.Pix, args[3]); n != len(img.Pix) {
			return errorResult(fmt.Errorf("expected %d bytes of rgba, got %d", len(img.Pix), n))
		}
		pending[id] = silhouette.NewBitmap(img)
	}

	data, err := cache.Get(context.Background(), id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"id":       data.ID,
		"width":    data.Width,
		"height":   data.Height,
		"points":   data.Boundary,
		"clipPath": data.ClipPath(),
		"polygon":  data.PolygonPoints(),
	})
}

// setThreshold(alpha) resets the trace cache with a new alpha cutoff.
func setThreshold(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult(fmt.Errorf("missing threshold"))
	}
	t := args[0].Int()
	if t < 0 || t > 255 {
		return errorResult(fmt.Errorf("threshold %d out of range", t))
	}
	cache = newCache(uint8(t))
	return okResult()
}

type boardJSON struct {
	Images []layout.Entry              `json:"images"`
	Shapes map[string]geometry.Polygon `json:"shapes"`
}

// loadBoard(json) replaces the engine with the given stack and outlines.
func loadBoard(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult(fmt.Errorf("missing board JSON"))
	}
	var b boardJSON
	if err := json.Unmarshal([]byte(args[0].String()), &b); err != nil {
		return errorResult(err)
	}
	eng = layout.New(b.Images, b.Shapes)
	return okResult()
}

// setShape(id, polygonJSON) installs a traced outline.
func setShape(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult(fmt.Errorf("usage: setShape(id, polygon)"))
	}
	var poly geometry.Polygon
	if err := json.Unmarshal([]byte(args[1].String()), &poly); err != nil {
		return errorResult(err)
	}
	if err := eng.SetShape(args[0].String(), poly); err != nil {
		return errorResult(err)
	}
	return okResult()
}

func activate(this js.Value, args []js.Value) interface{} {
	return toggle(args, true)
}

func deactivate(this js.Value, args []js.Value) interface{} {
	return toggle(args, false)
}

func toggle(args []js.Value, active bool) interface{} {
	if len(args) < 1 {
		return errorResult(fmt.Errorf("missing image id"))
	}
	changed, err := eng.ToggleActive(args[0].String(), active)
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"ok": true, "changed": changed})
}

func move(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult(fmt.Errorf("usage: move(id, x, y)"))
	}
	if err := eng.Move(args[0].String(), geometry.Pt(args[1].Float(), args[2].Float())); err != nil {
		return errorResult(err)
	}
	return okResult()
}

func rotate(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult(fmt.Errorf("usage: rotate(id, degrees)"))
	}
	if err := eng.Rotate(args[0].String(), args[1].Float()); err != nil {
		return errorResult(err)
	}
	return okResult()
}

func reorder(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult(fmt.Errorf("usage: reorder(id, direction)"))
	}
	dir, ok := layout.ParseDirection(args[1].String())
	if !ok {
		return errorResult(fmt.Errorf("unknown direction %q", args[1].String()))
	}
	idx, err := eng.Reorder(args[0].String(), dir)
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"ok": true, "index": idx})
}

func deleteAll(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.DeleteAll())
}

func getStack(this js.Value, args []js.Value) interface{} {
	return jsonResult(eng.Snapshot())
}

func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("")
	}
	id, _ := eng.HitTest(args[0].Float(), args[1].Float())
	return js.ValueOf(id)
}

func overlapping(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult(fmt.Errorf("missing image id"))
	}
	ids, err := eng.Overlapping(args[0].String())
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(ids)
}
