//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"

	"github.com/sketchroom/sketchroom/internal/canvas"
	"github.com/sketchroom/sketchroom/internal/element"
	"github.com/sketchroom/sketchroom/internal/geometry"
)

var (
	sess     *canvas.Session
	onUpdate js.Value
)

func main() {
	sess = canvas.NewSession(canvas.WithPublisher(canvas.PublisherFunc(publish)))

	api := js.Global().Get("Object").New()

	// --- Commands (frontend → engine) ---
	api.Set("setRoom", js.FuncOf(setRoom))
	api.Set("onDrawingUpdate", js.FuncOf(setOnDrawingUpdate))
	api.Set("loadElements", js.FuncOf(loadElements))
	api.Set("applyRemote", js.FuncOf(applyRemote))
	api.Set("setTool", js.FuncOf(setTool))
	api.Set("setStyle", js.FuncOf(setStyle))
	api.Set("pointerDown", js.FuncOf(pointerDown))
	api.Set("pointerMove", js.FuncOf(pointerMove))
	api.Set("pointerUp", js.FuncOf(pointerUp))
	api.Set("cancel", js.FuncOf(cancel))
	api.Set("setSelection", js.FuncOf(setSelection))
	api.Set("selectAll", js.FuncOf(selectAll))
	api.Set("clearSelection", js.FuncOf(clearSelection))
	api.Set("deleteSelected", js.FuncOf(deleteSelected))
	api.Set("duplicate", js.FuncOf(duplicate))
	api.Set("bringToFront", js.FuncOf(bringToFront))
	api.Set("sendToBack", js.FuncOf(sendToBack))
	api.Set("addText", js.FuncOf(addText))
	api.Set("addImage", js.FuncOf(addImage))
	api.Set("setText", js.FuncOf(setText))
	api.Set("clear", js.FuncOf(clearCanvas))
	api.Set("undo", js.FuncOf(undo))
	api.Set("redo", js.FuncOf(redo))

	// --- Queries (frontend ← engine) ---
	api.Set("getElements", js.FuncOf(getElements))
	api.Set("getVisible", js.FuncOf(getVisible))
	api.Set("hitTest", js.FuncOf(hitTest))
	api.Set("getSelection", js.FuncOf(getSelection))
	api.Set("getSelectionBounds", js.FuncOf(getSelectionBounds))
	api.Set("getSelectionBox", js.FuncOf(getSelectionBox))
	api.Set("canUndo", js.FuncOf(canUndo))
	api.Set("canRedo", js.FuncOf(canRedo))

	js.Global().Set("sketchroomEngine", api)
	js.Global().Set("sketchroomWasmReady", js.ValueOf(true))

	select {}
}

// publish hands every local mutation to the frontend, which relays it.
func publish(u canvas.DrawingUpdate) {
	if onUpdate.Type() != js.TypeFunction {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	onUpdate.Invoke(string(data))
}

func ok() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func fail(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func missing(what string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": "missing " + what})
}

func point(args []js.Value) geometry.Point {
	return geometry.Point{X: args[0].Float(), Y: args[1].Float()}
}

func stringList(v js.Value) []string {
	if v.Type() != js.TypeObject {
		return nil
	}
	out := make([]string, v.Length())
	for i := range out {
		out[i] = v.Index(i).String()
	}
	return out
}

func toJSON(v any) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return js.ValueOf("null")
	}
	return js.ValueOf(string(data))
}

func rectJSON(r geometry.Rect, found bool) interface{} {
	if !found {
		return js.ValueOf("null")
	}
	return toJSON(r)
}

// --- Command Handlers ---

func setRoom(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("room id")
	}
	sess.SetRoom(args[0].String())
	return ok()
}

func setOnDrawingUpdate(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		onUpdate = js.Undefined()
		return nil
	}
	onUpdate = args[0]
	return nil
}

func loadElements(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("elements JSON")
	}
	var list element.List
	if err := json.Unmarshal([]byte(args[0].String()), &list); err != nil {
		return fail(err)
	}
	sess.Load(list)
	return ok()
}

func applyRemote(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("update JSON")
	}
	u, err := canvas.ParseUpdate([]byte(args[0].String()))
	if err != nil {
		return fail(err)
	}
	if err := sess.ApplyRemote(u); err != nil {
		return fail(err)
	}
	return ok()
}

func setTool(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("tool")
	}
	if err := sess.SetTool(canvas.Tool(args[0].String())); err != nil {
		return fail(err)
	}
	return ok()
}

func setStyle(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("style JSON")
	}
	style := sess.Style()
	var in struct {
		Color       *string  `json:"color"`
		StrokeWidth *float64 `json:"strokeWidth"`
		Opacity     *float64 `json:"opacity"`
	}
	if err := json.Unmarshal([]byte(args[0].String()), &in); err != nil {
		return fail(err)
	}
	if in.Color != nil {
		style.Color = *in.Color
	}
	if in.StrokeWidth != nil {
		style.StrokeWidth = *in.StrokeWidth
	}
	if in.Opacity != nil {
		style.Opacity = in.Opacity
	}
	sess.SetStyle(style)
	return ok()
}

func pointerDown(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	shift := len(args) > 2 && args[2].Truthy()
	ev := sess.PointerDown(point(args), shift)
	return js.ValueOf(map[string]interface{}{
		"hitId":       ev.HitID,
		"doubleClick": ev.DoubleClick,
		"mode":        ev.Mode.String(),
	})
}

func pointerMove(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	sess.PointerMove(point(args))
	return nil
}

func pointerUp(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	sess.PointerUp(point(args))
	return nil
}

func cancel(this js.Value, args []js.Value) interface{} {
	sess.Cancel()
	return nil
}

func setSelection(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		sess.ClearSelection()
		return nil
	}
	sess.Select(stringList(args[0]))
	return nil
}

func selectAll(this js.Value, args []js.Value) interface{} {
	sess.SelectAll()
	return nil
}

func clearSelection(this js.Value, args []js.Value) interface{} {
	sess.ClearSelection()
	return nil
}

func deleteSelected(this js.Value, args []js.Value) interface{} {
	return toJSON(sess.Delete())
}

func duplicate(this js.Value, args []js.Value) interface{} {
	return toJSON(sess.Duplicate())
}

func bringToFront(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(sess.BringToFront())
}

func sendToBack(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(sess.SendToBack())
}

func addText(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return js.ValueOf("")
	}
	fontSize := 16.0
	if len(args) > 3 {
		fontSize = args[3].Float()
	}
	return js.ValueOf(sess.AddText(point(args), args[2].String(), fontSize))
}

func addImage(this js.Value, args []js.Value) interface{} {
	if len(args) < 5 {
		return js.ValueOf("")
	}
	return js.ValueOf(sess.AddImage(point(args), args[2].String(), args[3].Float(), args[4].Float()))
}

func setText(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return missing("id and text")
	}
	if err := sess.SetText(args[0].String(), args[1].String()); err != nil {
		return fail(err)
	}
	return ok()
}

func clearCanvas(this js.Value, args []js.Value) interface{} {
	sess.Clear()
	return nil
}

func undo(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(sess.Undo())
}

func redo(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(sess.Redo())
}

// --- Query Handlers ---

func getElements(this js.Value, args []js.Value) interface{} {
	return toJSON(sess.Elements())
}

func getVisible(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return js.ValueOf("[]")
	}
	viewport := geometry.Rect{X: args[0].Float(), Y: args[1].Float(), Width: args[2].Float(), Height: args[3].Float()}
	return toJSON(element.List(sess.Visible(viewport)))
}

func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("")
	}
	id, _ := sess.HitTest(point(args))
	return js.ValueOf(id)
}

func getSelection(this js.Value, args []js.Value) interface{} {
	state := sess.Selection()
	ids := state.SelectedIDs
	if ids == nil {
		ids = []string{}
	}
	return toJSON(map[string]interface{}{
		"selectedIds":   ids,
		"isMultiSelect": state.IsMultiSelect,
		"mode":          sess.SelectionMode().String(),
	})
}

func getSelectionBounds(this js.Value, args []js.Value) interface{} {
	return rectJSON(sess.SelectionBounds())
}

func getSelectionBox(this js.Value, args []js.Value) interface{} {
	return rectJSON(sess.SelectionBox())
}

func canUndo(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(sess.CanUndo())
}

func canRedo(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(sess.CanRedo())
}
