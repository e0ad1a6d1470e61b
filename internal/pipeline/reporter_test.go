package pipeline

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestReporterKeepsProgressMonotonicAndSingleTerminal(t *testing.T) {
	rec := &Recorder{}
	rep := NewReporter(rec, nil)

	_ = rep.Emit(StageEvent{Stage: StageStructure, Progress: 20})
	_ = rep.Emit(StageEvent{Stage: StageInit, Progress: 10})
	if err := rep.Emit(ErrorEvent{Stage: StageStructure, Message: "boom", Progress: 0}); err != nil {
		t.Fatalf("terminal emit returned error: %v", err)
	}
	if err := rep.Emit(CompleteEvent{Stage: StageFinalize, Progress: 100}); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("emit after terminal = %v, want ErrStreamClosed", err)
	}

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	second := events[1]
	if second.StageNumber() != StageStructure || second.ProgressValue() != 20 {
		t.Fatalf("regressing event = stage %d progress %d", second.StageNumber(), second.ProgressValue())
	}
	if events[2].ProgressValue() != 0 {
		t.Fatalf("error progress = %d, want 0", events[2].ProgressValue())
	}
	if !rep.Closed() {
		t.Fatal("reporter should be closed")
	}
}

func TestReporterStopsDeliveringAfterSinkError(t *testing.T) {
	calls := 0
	sinkErr := errors.New("client gone")
	rep := NewReporter(SinkFunc(func(Event) error {
		calls++
		return sinkErr
	}), nil)
	_ = rep.Emit(StageEvent{Stage: StageInit, Progress: 5})
	if err := rep.Emit(StageEvent{Stage: StageInit, Progress: 10}); !errors.Is(err, sinkErr) {
		t.Fatalf("second emit = %v, want sink error", err)
	}
	if calls != 1 {
		t.Fatalf("sink calls = %d, want 1", calls)
	}
}

func TestImageProgress(t *testing.T) {
	cases := []struct {
		settled, total, want int
	}{
		{0, 6, 30},
		{1, 6, 40},
		{3, 6, 60},
		{6, 6, 90},
		{9, 6, 90},
		{0, 0, 90},
	}
	for _, tc := range cases {
		if got := ImageProgress(tc.settled, tc.total); got != tc.want {
			t.Errorf("ImageProgress(%d, %d) = %d, want %d", tc.settled, tc.total, got, tc.want)
		}
	}
}

func TestEncodeWireShape(t *testing.T) {
	raw, err := Encode(ImageDoneEvent{Stage: StageImages, ImageID: "part_2", Progress: 40, Elapsed: 1.25, ImageURL: "/historias/x/part_2.png", CurrentImage: 3, TotalImages: 6})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "image_done" || got["imageId"] != "part_2" || got["imageUrl"] != "/historias/x/part_2.png" {
		t.Fatalf("unexpected payload %s", raw)
	}
	if got["progress"].(float64) != 40 || got["stage"].(float64) != 3 {
		t.Fatalf("unexpected numbers %s", raw)
	}
	if _, ok := got["totalTime"]; ok {
		t.Fatalf("image_done must not carry totalTime: %s", raw)
	}

	raw, err = Encode(CompleteEvent{Stage: StageFinalize, Progress: 100, TotalTime: 0})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["totalTime"]; !ok {
		t.Fatalf("complete must carry totalTime even when zero: %s", raw)
	}
}
