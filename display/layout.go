package display

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AsterZephyr/rotascope/message"
)

// Layout describes a set of emulated displays, loaded from YAML:
//
//	displays:
//	  - name: left
//	    width: 1920
//	    height: 1080
//	  - name: right
//	    width: 1280
//	    height: 720
type Layout struct {
	Displays []LayoutDisplay `yaml:"displays"`
}

// LayoutDisplay is one display of a Layout.
type LayoutDisplay struct {
	Name   string `yaml:"name"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

// LoadLayout reads and validates the layout file at path.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read display layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout parses and validates a YAML layout.
func ParseLayout(data []byte) (Layout, error) {
	layout := Layout{}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("parse display layout: %w", err)
	}
	if len(layout.Displays) == 0 {
		return Layout{}, errors.New("display layout: no displays")
	}
	if len(layout.Displays) > math.MaxUint8 {
		return Layout{}, fmt.Errorf("display layout: %d displays, at most %d are supported", len(layout.Displays), math.MaxUint8)
	}
	for i, d := range layout.Displays {
		if d.Width == 0 || d.Height == 0 {
			return Layout{}, fmt.Errorf("display layout: display %d (%s) needs width and height", i, d.Name)
		}
	}
	return layout, nil
}

// Resolutions returns the display sizes in layout order.
func (l Layout) Resolutions() []message.Resolution {
	result := make([]message.Resolution, len(l.Displays))
	for i, d := range l.Displays {
		result[i] = message.Resolution{d.Width, d.Height}
	}
	return result
}

// LayoutOf describes the displays of an initialized provider.
func LayoutOf(provider Provider) Layout {
	layout := Layout{}
	for i, r := range provider.Resolutions() {
		layout.Displays = append(layout.Displays, LayoutDisplay{
			Name:   fmt.Sprintf("%s-%d", provider.Name(), i),
			Width:  r.Width(),
			Height: r.Height(),
		})
	}
	return layout
}

// Marshal encodes the layout in the format LoadLayout reads.
func (l Layout) Marshal() ([]byte, error) {
	return yaml.Marshal(l)
}
