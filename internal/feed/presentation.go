package feed

import "time"

// Presentation is the icon and color pairing used to render a record's kind.
type Presentation struct {
	Icon       string `json:"icon"`
	Color      string `json:"color"`
	Background string `json:"background"`
}

var presentations = map[Kind]Presentation{
	KindOutfitLogged:  {Icon: "shirt-outline", Color: "#F0507B", Background: "#FFE8EF"},
	KindStreakReached: {Icon: "flame-outline", Color: "#FF6B35", Background: "#FFF0EA"},
	KindItemAdded:     {Icon: "add-circle-outline", Color: "#7C5CBF", Background: "#F0EAFF"},
	KindOutfitDeleted: {Icon: "trash-outline", Color: "#888888", Background: "#F6F6F6"},
}

// PresentationFor returns display metadata for kind. Kinds this build does
// not know about render like an outfit_logged record.
func PresentationFor(kind Kind) Presentation {
	if p, ok := presentations[kind]; ok {
		return p
	}
	return presentations[KindOutfitLogged]
}

// FormatTime renders the time of day as 24-hour HH:MM.
func FormatTime(t time.Time) string {
	return t.Format("15:04")
}
