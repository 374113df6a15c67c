package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type switcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *switcher) SwitchVoice(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return s.err
}

var voices = []string{"Paraibana", "Baiana", "Carioca", "Kore"}

func newTestRegistry(t *testing.T, sw VoiceSwitcher, sink func(Highlight)) *Registry {
	t.Helper()
	r, err := NewRegistry(
		ReportObjectDetection(sink),
		SwitchVoice(voices, NewMatcher(), sw),
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRegistry_Declarations(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, &switcher{}, func(Highlight) {})
	decls := r.Declarations()
	if len(decls) != 2 || decls[0].Name != ReportObjectDetectionName || decls[1].Name != SwitchVoiceName {
		t.Fatalf("declarations = %+v", decls)
	}
	if got := decls[1].Parameters.Required; len(got) != 1 || got[0] != "voiceId" {
		t.Errorf("switchVoice required = %v", got)
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	t.Parallel()

	r, _ := NewRegistry()
	if err := r.Register(Tool{}); err == nil {
		t.Error("expected error for missing declaration")
	}
	tool := ReportObjectDetection(func(Highlight) {})
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(tool); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestInvoke_Unsupported(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, &switcher{}, func(Highlight) {})
	resp, err := r.Invoke(context.Background(), "launchRockets", nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	if resp["result"] != "unsupported" {
		t.Errorf("resp = %v", resp)
	}
}

func TestInvoke_SwitchVoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		voiceID any
		wantID  string
		wantErr bool
	}{
		{"exact", "Kore", "Kore", false},
		{"case insensitive", "carioca", "Carioca", false},
		{"near miss", "Paraibanna", "Paraibana", false},
		{"unknown", "Zeus", "", true},
		{"missing", nil, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sw := &switcher{}
			r := newTestRegistry(t, sw, func(Highlight) {})

			resp, err := r.Invoke(context.Background(), SwitchVoiceName, map[string]any{"voiceId": tc.voiceID})
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if _, ok := resp["error"]; !ok {
					t.Errorf("resp = %v, want error key", resp)
				}
				if len(sw.ids) != 0 {
					t.Errorf("switcher called with %v", sw.ids)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if resp["result"] != "ok" {
				t.Errorf("resp = %v", resp)
			}
			if len(sw.ids) != 1 || sw.ids[0] != tc.wantID {
				t.Errorf("switched to %v, want [%s]", sw.ids, tc.wantID)
			}
		})
	}
}

func TestInvoke_ReportObjectDetection(t *testing.T) {
	t.Parallel()

	var got []Highlight
	r := newTestRegistry(t, &switcher{}, func(h Highlight) { got = append(got, h) })

	resp, err := r.Invoke(context.Background(), ReportObjectDetectionName, map[string]any{
		"label": "cup", "x": 10.0, "y": 20.0, "width": 30.0, "height": 40.0,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp["result"] != "ok" {
		t.Errorf("resp = %v, want result ok", resp)
	}
	if len(got) != 1 || got[0] != (Highlight{Label: "cup", X: 10, Y: 20, Width: 30, Height: 40}) {
		t.Errorf("highlights = %+v", got)
	}

	if _, err := r.Invoke(context.Background(), ReportObjectDetectionName, map[string]any{"label": "cup"}); err == nil {
		t.Error("expected error for missing coordinates")
	}
}

func TestInvoke_RecoversPanic(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, &switcher{}, func(Highlight) { panic("boom") })
	resp, err := r.Invoke(context.Background(), ReportObjectDetectionName, map[string]any{
		"label": "cup", "x": 1.0, "y": 1.0, "width": 1.0, "height": 1.0,
	})
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if _, ok := resp["error"]; !ok {
		t.Errorf("resp = %v, want error key", resp)
	}
}

func TestMatcher(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Kore", "Kore", true},
		{"  baiana ", "Baiana", true},
		{"", "", false},
		{"Xylophone", "", false},
	}
	for _, tc := range tests {
		got, _, ok := m.Match(tc.in, voices)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
