package radio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Station is a playable source definition. A Station with an empty ID is a
// draft that the server has not created yet and cannot be addressed.
type Station struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// IsDraft reports whether the station has no server-assigned identifier.
func (s Station) IsDraft() bool { return s.ID == "" }

// Draft returns a copy of s without its identifier, suitable as a request body.
func (s Station) Draft() Station {
	return Station{Name: s.Name, URL: s.URL}
}

// PlaybackStatus is the selection and play state reported by the device.
type PlaybackStatus struct {
	Selected *Station `json:"selectedStation"`
	Playing  bool     `json:"isPlaying"`
}

// SelectedID returns the identifier of the selected station, or "" when
// nothing is selected.
func (p PlaybackStatus) SelectedID() string {
	if p.Selected == nil {
		return ""
	}
	return p.Selected.ID
}

// IsPlaying reports whether the station with the given id is selected and
// currently playing.
func (p PlaybackStatus) IsPlaying(id string) bool {
	return id != "" && p.Playing && p.SelectedID() == id
}

// Equal reports whether two statuses describe the same selection and state.
func (p PlaybackStatus) Equal(o PlaybackStatus) bool {
	if p.Playing != o.Playing {
		return false
	}
	if (p.Selected == nil) != (o.Selected == nil) {
		return false
	}
	return p.Selected == nil || *p.Selected == *o.Selected
}

// Clone returns a deep copy of p.
func (p PlaybackStatus) Clone() PlaybackStatus {
	if p.Selected == nil {
		return p
	}
	sel := *p.Selected
	return PlaybackStatus{Selected: &sel, Playing: p.Playing}
}

// CloneStations returns a copy of the slice. A nil input stays nil.
func CloneStations(in []Station) []Station {
	if in == nil {
		return nil
	}
	out := make([]Station, len(in))
	copy(out, in)
	return out
}

// IndexStation returns the position of the station with the given id, or -1.
func IndexStation(list []Station, id string) int {
	for i, s := range list {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Volume bounds. The device accepts levels in [MinVolume, MaxVolume].
const (
	MinVolume = 0
	MaxVolume = 100
)

// ClampVolume limits v to [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	switch {
	case v < MinVolume:
		return MinVolume
	case v > MaxVolume:
		return MaxVolume
	default:
		return v
	}
}

// Volume decodes a volume level from any of the shapes the service emits:
// a bare number, a numeric string, or an object {"volume": n}.
type Volume int

// UnmarshalJSON implements json.Unmarshaler.
func (v *Volume) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("radio: empty volume")
	}

	switch data[0] {
	case '{':
		var obj struct {
			Volume *json.RawMessage `json:"volume"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("radio: decode volume: %w", err)
		}
		if obj.Volume == nil {
			return fmt.Errorf("radio: volume object without volume field")
		}
		return v.UnmarshalJSON(*obj.Volume)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("radio: decode volume: %w", err)
		}
		return v.parse(strings.TrimSpace(s))
	default:
		return v.parse(string(data))
	}
}

// parse accepts finite levels in [MinVolume, MaxVolume]. Fractions are
// truncated; anything else is rejected rather than clamped.
func (v *Volume) parse(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("radio: decode volume %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < MinVolume || f > MaxVolume {
		return fmt.Errorf("radio: volume %q out of range [%d, %d]", s, MinVolume, MaxVolume)
	}
	*v = Volume(int(f))
	return nil
}
