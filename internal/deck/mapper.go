package deck

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brad-usredoxlabs/computable-lab/internal/task"
)

// Mapper turns a task's Vialab protocol artifact into an AssistConfig
// artifact under the records root.
type Mapper struct {
	// RecordsRoot anchors relative artifact URIs and receives the
	// generated AssistConfig files.
	RecordsRoot string
	Layout      *Layout
}

// The artifact role carrying the Vialab protocol XML.
const VialabXMLRole = "integra_vialab_xml"

// assistConfig is the generated deck configuration document.
type assistConfig struct {
	XMLName     xml.Name         `xml:"AssistConfig"`
	RobotPlanID string           `xml:"robotPlanId,attr"`
	Deck        string           `xml:"deck,attr"`
	Pipette     string           `xml:"pipette"`
	Tip         string           `xml:"tip"`
	Positions   []assistPosition `xml:"Positions>Position"`
}

type assistPosition struct {
	Section string `xml:"section,attr"`
	Corner  string `xml:"corner,attr"`
	Labware string `xml:"labware"`
	Role    string `xml:"role,omitempty"`
}

// MapTask resolves the task's protocol XML, maps every deck slot onto an
// Assist section and writes the AssistConfig artifact. The returned
// result is terminal-completed with the mapped artifact attached.
func (m *Mapper) MapTask(ctx context.Context, t *task.Task) (*task.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	xmlURI, err := findProtocolRef(t.ArtifactRefs)
	if err != nil {
		return nil, err
	}
	xmlPath, err := m.resolveArtifact(xmlURI)
	if err != nil {
		return nil, err
	}

	slots, err := ParseProtocol(xmlPath)
	if err != nil {
		return nil, err
	}

	cfg := assistConfig{
		RobotPlanID: t.RobotPlanID,
		Deck:        m.Layout.Deck,
		Pipette:     m.Layout.Pipette,
		Tip:         m.Layout.Tip,
	}
	for _, slot := range slots {
		section, err := NormalizeSection(slot.ID, m.Layout)
		if err != nil {
			return nil, err
		}
		labware, err := m.Layout.Labware(section, slot.Role)
		if err != nil {
			return nil, err
		}
		cfg.Positions = append(cfg.Positions, assistPosition{
			Section: section,
			Corner:  OrientationCorner(slot.Orientation),
			Labware: labware,
			Role:    slot.Role,
		})
	}

	relPath, err := m.writeConfig(t.RobotPlanID, cfg)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	return &task.Result{
		FinalStatus: task.StatusCompleted,
		Logs: []task.LogEntry{{
			Message: fmt.Sprintf("Mapped %s onto the Assist deck and generated AssistConfig", xmlURI),
			Level:   "info",
			Code:    "DECK_MAPPED",
			Data: map[string]any{
				"sourceArtifact": xmlURI,
				"mappedArtifact": relPath,
				"robotPlanId":    t.RobotPlanID,
				"executionRunId": t.ExecutionRunID,
				"slotsMapped":    len(slots),
			},
			Timestamp: now,
		}},
		Artifacts: []task.Artifact{{
			Role:     "integra_assist_config",
			URI:      relPath,
			MimeType: "application/xml",
		}},
		External: map[string]any{
			"runId":     "deckmap-" + t.ExecutionRunID,
			"rawStatus": "completed",
		},
	}, nil
}

// findProtocolRef picks the Vialab XML artifact: the tagged role first,
// otherwise the first .xml URI.
func findProtocolRef(refs []task.ArtifactRef) (string, error) {
	fallback := ""
	for _, ref := range refs {
		if ref.URI == "" {
			continue
		}
		if ref.Role == VialabXMLRole {
			return ref.URI, nil
		}
		if fallback == "" && strings.HasSuffix(ref.URI, ".xml") {
			fallback = ref.URI
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("no XML artifact found in task artifact refs")
}

func (m *Mapper) resolveArtifact(uri string) (string, error) {
	if filepath.IsAbs(uri) {
		if _, err := os.Stat(uri); err == nil {
			return uri, nil
		}
	}
	candidate := filepath.Join(m.RecordsRoot, strings.TrimPrefix(uri, "/"))
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("robot-plan artifact not found: uri=%s, resolved=%s", uri, candidate)
	}
	return candidate, nil
}

func (m *Mapper) writeConfig(robotPlanID string, cfg assistConfig) (string, error) {
	relDir := filepath.Join("records", "robot-artifact", "integra_assist", "mapped")
	dir := filepath.Join(m.RecordsRoot, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create mapped artifact dir: %w", err)
	}

	data, err := xml.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal assist config: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	name := robotPlanID + ".assistconfig.xml"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write assist config: %w", err)
	}
	return filepath.ToSlash(filepath.Join(relDir, name)), nil
}
