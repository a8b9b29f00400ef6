package radio_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/germanamz/piradio/pkg/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"localhost", "http://localhost:3000"},
		{"192.168.1.20", "http://192.168.1.20:3000"},
		{"pi.local:8080", "http://pi.local:8080"},
		{"::1", "http://[::1]:3000"},
		{"http://pi.local:3000/", "http://pi.local:3000"},
		{"https://radio.example.com", "https://radio.example.com"},
		{"  raspberrypi  ", "http://raspberrypi:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := radio.ConnectionConfig{Address: tt.address}.BaseURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaseURL_Invalid(t *testing.T) {
	for _, addr := range []string{"", "   ", "ftp://pi.local", "http://"} {
		t.Run(fmt.Sprintf("%q", addr), func(t *testing.T) {
			err := radio.ConnectionConfig{Address: addr}.Validate()
			assert.Error(t, err)
		})
	}
}

func TestConnectionConfig_StringHidesCredential(t *testing.T) {
	c := radio.ConnectionConfig{Address: "pi.local", Credential: "secret"}
	assert.Equal(t, "pi.local", c.String())
	assert.NotContains(t, fmt.Sprint(c), "secret")
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0, radio.ClampVolume(-15))
	assert.Equal(t, 0, radio.ClampVolume(0))
	assert.Equal(t, 55, radio.ClampVolume(55))
	assert.Equal(t, 100, radio.ClampVolume(100))
	assert.Equal(t, 100, radio.ClampVolume(140))
}

func TestVolume_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{`40`, 40},
		{`40.0`, 40},
		{`"65"`, 65},
		{`" 7 "`, 7},
		{`{"volume":80}`, 80},
		{`{"volume":"12"}`, 12},
		{`0`, 0},
		{`100`, 100},
		{`99.9`, 99},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v radio.Volume
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.want, int(v))
		})
	}
}

func TestVolume_UnmarshalInvalid(t *testing.T) {
	for _, in := range []string{
		`null`, `"loud"`, `{}`, `{"level":3}`, `true`,
		`"NaN"`, `"Inf"`, `"-Inf"`, `1e300`, `-1e300`, `-1`, `101`, `{"volume":"NaN"}`,
	} {
		t.Run(in, func(t *testing.T) {
			var v radio.Volume
			assert.Error(t, json.Unmarshal([]byte(in), &v))
		})
	}
}

func TestPlaybackStatus_WireFormat(t *testing.T) {
	raw := `{"selectedStation":{"_id":"1","name":"BBC","url":"http://a"},"isPlaying":true}`

	var st radio.PlaybackStatus
	require.NoError(t, json.Unmarshal([]byte(raw), &st))

	assert.Equal(t, "1", st.SelectedID())
	assert.True(t, st.IsPlaying("1"))
	assert.False(t, st.IsPlaying("2"))
	assert.False(t, st.IsPlaying(""))
}

func TestPlaybackStatus_NothingSelected(t *testing.T) {
	var st radio.PlaybackStatus
	require.NoError(t, json.Unmarshal([]byte(`{"selectedStation":null,"isPlaying":false}`), &st))

	assert.Nil(t, st.Selected)
	assert.Empty(t, st.SelectedID())
}

func TestPlaybackStatus_EqualAndClone(t *testing.T) {
	a := radio.PlaybackStatus{Selected: &radio.Station{ID: "1", Name: "BBC"}, Playing: true}
	b := a.Clone()

	assert.True(t, a.Equal(b))
	b.Selected.Name = "changed"
	assert.Equal(t, "BBC", a.Selected.Name)
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(radio.PlaybackStatus{}))
	assert.True(t, radio.PlaybackStatus{}.Equal(radio.PlaybackStatus{}))
}

func TestStation_DraftJSONOmitsID(t *testing.T) {
	s := radio.Station{ID: "abc", Name: "Jazz", URL: "http://jazz"}
	assert.False(t, s.IsDraft())

	b, err := json.Marshal(s.Draft())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Jazz","url":"http://jazz"}`, string(b))
}

func TestIndexAndCloneStations(t *testing.T) {
	list := []radio.Station{{ID: "1"}, {ID: "2"}}
	assert.Equal(t, 1, radio.IndexStation(list, "2"))
	assert.Equal(t, -1, radio.IndexStation(list, "3"))

	cp := radio.CloneStations(list)
	cp[0].ID = "x"
	assert.Equal(t, "1", list[0].ID)
	assert.Nil(t, radio.CloneStations(nil))
}

func TestErrors_Unwrap(t *testing.T) {
	err := fmt.Errorf("commandclient: %w", &radio.TransportError{
		Op:     "delete station",
		Status: http.StatusNotFound,
		Err:    &radio.StaleReferenceError{ID: "9"},
	})

	var te *radio.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.Status)

	var stale *radio.StaleReferenceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "9", stale.ID)

	ce := &radio.ConnectError{Address: "pi", Err: &radio.AuthError{Status: http.StatusUnauthorized}}
	var auth *radio.AuthError
	require.True(t, errors.As(ce, &auth))
	assert.Contains(t, ce.Error(), "credential rejected (401 Unauthorized)")
}

func TestIsAuthStatus(t *testing.T) {
	assert.True(t, radio.IsAuthStatus(http.StatusUnauthorized))
	assert.True(t, radio.IsAuthStatus(http.StatusForbidden))
	assert.False(t, radio.IsAuthStatus(http.StatusNotFound))
}
