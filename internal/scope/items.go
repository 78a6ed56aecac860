package scope

// itemsField holds bulk rename/move pairs.
const itemsField = "items"

// MoveItem is one source/destination pair of a bulk rename or move.
type MoveItem struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// MoveItems decodes the items field of args. Typed slices are used as-is;
// decoded JSON arrays contribute their object elements, anything else is
// skipped.
func MoveItems(args Arguments) []MoveItem {
	switch items := args[itemsField].(type) {
	case []MoveItem:
		return items
	case []*MoveItem:
		out := make([]MoveItem, 0, len(items))
		for _, item := range items {
			if item != nil {
				out = append(out, *item)
			}
		}
		return out
	case []map[string]any:
		out := make([]MoveItem, 0, len(items))
		for _, obj := range items {
			out = append(out, moveItemFromMap(obj))
		}
		return out
	case []any:
		out := make([]MoveItem, 0, len(items))
		for _, elem := range items {
			switch v := elem.(type) {
			case map[string]any:
				out = append(out, moveItemFromMap(v))
			case MoveItem:
				out = append(out, v)
			}
		}
		return out
	}
	return nil
}

func moveItemFromMap(obj map[string]any) MoveItem {
	oldPath, _ := obj["oldPath"].(string)
	newPath, _ := obj["newPath"].(string)
	return MoveItem{OldPath: oldPath, NewPath: newPath}
}
