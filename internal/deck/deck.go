// Package deck maps Vialab protocol deck layouts onto INTEGRA Assist
// deck sections and generates the AssistConfig artifact consumed by the
// instrument software.
package deck

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Slot is one deck slot declared in a Vialab protocol.
type Slot struct {
	ID          string
	Role        string
	Orientation string
}

// Orientation corner names understood by the Assist deck model.
const (
	CornerNW = "A1_NW_CORNER"
	CornerSW = "A1_SW_CORNER"
)

// ErrNoSlots is returned when a protocol declares an empty deck.
var ErrNoSlots = errors.New("no deck slots found in protocol")

type vialabProtocol struct {
	XMLName xml.Name `xml:"VialabProtocol"`
	Deck    struct {
		Slots []vialabSlot `xml:"Slot"`
	} `xml:"Deck"`
}

type vialabSlot struct {
	ID          string `xml:"id,attr"`
	LabwareRole string `xml:"labwareRole,attr"`
	Orientation string `xml:"orientation,attr"`
}

// ParseProtocol reads a Vialab protocol XML file and returns its deck
// slots. Slots without an id are skipped; an empty deck is an error.
func ParseProtocol(path string) ([]Slot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol: %w", err)
	}

	var proto vialabProtocol
	if err := xml.Unmarshal(data, &proto); err != nil {
		return nil, fmt.Errorf("failed to parse protocol %s: %w", path, err)
	}

	slots := make([]Slot, 0, len(proto.Deck.Slots))
	for _, s := range proto.Deck.Slots {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		orientation := strings.ToLower(strings.TrimSpace(s.Orientation))
		if orientation == "" {
			orientation = "landscape"
		}
		slots = append(slots, Slot{
			ID:          id,
			Role:        strings.TrimSpace(s.LabwareRole),
			Orientation: orientation,
		})
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSlots, path)
	}
	return slots, nil
}

// sectionAliases maps common Vialab slot ids onto Assist deck sections.
var sectionAliases = map[string]string{
	"SLOT_1": "A",
	"SLOT_2": "B",
	"SLOT_3": "C",
	"SLOT_4": "D",
	"1":      "A",
	"2":      "B",
	"3":      "C",
	"4":      "D",
}

// NormalizeSection resolves a slot id to one of the deck sections A-D,
// applying the layout's own aliases first and the builtin table second.
func NormalizeSection(slotID string, layout *Layout) (string, error) {
	candidate := slotID
	if layout != nil {
		if mapped, ok := layout.SlotMap[strings.ToLower(slotID)]; ok {
			candidate = mapped
		}
	}
	normalized := strings.ToUpper(strings.TrimSpace(candidate))
	if alias, ok := sectionAliases[normalized]; ok {
		normalized = alias
	}
	switch normalized {
	case "A", "B", "C", "D":
		return normalized, nil
	}
	return "", fmt.Errorf("unsupported slot mapping %q -> %q (expected A-D)", slotID, normalized)
}

// OrientationCorner translates a Vialab orientation into the labware
// reference corner the Assist deck expects.
func OrientationCorner(orientation string) string {
	if strings.ToLower(strings.TrimSpace(orientation)) == "portrait" {
		return CornerSW
	}
	return CornerNW
}
