package dispatch

import (
	"sync/atomic"
	"testing"

	"github.com/char5742/evhz/internal/estimator"
	"github.com/char5742/evhz/internal/source"
)

// fakeSource は台本どおりにデバイス通知とイベントを再生するソース。
// 台本を使い切った時点でquitフラグを立ててループを終わらせる。
type fakeSource struct {
	devices  []source.DeviceInfo          // Startで通知するデバイス
	batches  [][]source.Event             // Poll1回ごとに流すイベント
	late     map[int][]source.DeviceInfo  // Poll番号→その回の冒頭で追加通知するデバイス
	startErr error

	quit     *atomic.Bool
	announce func(source.DeviceInfo)
	polls    int
	closed   int
}

func (f *fakeSource) Start(announce func(source.DeviceInfo)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.announce = announce
	for _, d := range f.devices {
		announce(d)
	}
	return nil
}

func (f *fakeSource) Poll(emit func(source.Event)) error {
	if f.polls < len(f.batches) {
		for _, d := range f.late[f.polls] {
			f.announce(d)
		}
		for _, ev := range f.batches[f.polls] {
			emit(ev)
		}
	}
	f.polls++
	if f.polls >= len(f.batches) {
		f.quit.Store(true)
	}
	return nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

type sampleRecord struct {
	name    string
	rate    uint64
	average uint64
}

// fakeReporter は出力呼び出しを記録するだけのReporter
type fakeReporter struct {
	devices   []string
	begun     bool
	samples   []sampleRecord
	summaries []sampleRecord
}

func (r *fakeReporter) Device(info source.DeviceInfo) {
	r.devices = append(r.devices, info.Name)
}

func (r *fakeReporter) Begin() {
	r.begun = true
}

func (r *fakeReporter) Sample(name string, s estimator.Sample) {
	r.samples = append(r.samples, sampleRecord{name: name, rate: s.Rate, average: s.Average})
}

func (r *fakeReporter) Summary(name string, average uint64) {
	r.summaries = append(r.summaries, sampleRecord{name: name, average: average})
}

func run(t *testing.T, src *fakeSource, rep *fakeReporter) error {
	t.Helper()
	var quit atomic.Bool
	src.quit = &quit
	d := New(src, rep, &quit, estimator.DefaultMaxHz)
	return d.Run()
}

func TestRunRoutesEventsAndSummarizes(t *testing.T) {
	// 10ms間隔のイベント3つ → 基準点の後に100Hzのサンプルが2つ
	src := &fakeSource{
		devices: []source.DeviceInfo{{ID: 0, Label: "event0", Name: "Mouse"}},
		batches: [][]source.Event{
			{{DeviceID: 0, Timestamp: 1_000_000}},
			{{DeviceID: 0, Timestamp: 1_010_000}, {DeviceID: 0, Timestamp: 1_020_000}},
		},
	}
	rep := &fakeReporter{}

	if err := run(t, src, rep); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !rep.begun {
		t.Errorf("Beginが呼ばれていない")
	}
	if len(rep.samples) != 2 {
		t.Fatalf("サンプル数 = %d, want 2", len(rep.samples))
	}
	for i, s := range rep.samples {
		if s.name != "Mouse" || s.rate != 100 {
			t.Errorf("samples[%d] = %+v, want Mouse 100Hz", i, s)
		}
	}
	if len(rep.summaries) != 1 || rep.summaries[0].name != "Mouse" || rep.summaries[0].average != 100 {
		t.Errorf("summaries = %+v, want [Mouse 100Hz]", rep.summaries)
	}
	if src.closed != 1 {
		t.Errorf("Close回数 = %d, want 1", src.closed)
	}
}

func TestRunSkipsSummaryForSilentDevices(t *testing.T) {
	// デバイス1は通知のみでイベントなし → サマリは出力されない
	src := &fakeSource{
		devices: []source.DeviceInfo{
			{ID: 0, Label: "event0", Name: "Mouse"},
			{ID: 1, Label: "event1", Name: "Keyboard"},
		},
		batches: [][]source.Event{
			{{DeviceID: 0, Timestamp: 1_000_000}, {DeviceID: 0, Timestamp: 1_005_000}},
		},
	}
	rep := &fakeReporter{}

	if err := run(t, src, rep); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rep.summaries) != 1 {
		t.Fatalf("サマリ数 = %d, want 1", len(rep.summaries))
	}
	if rep.summaries[0].name != "Mouse" {
		t.Errorf("summaries[0].name = %q, want Mouse", rep.summaries[0].name)
	}
}

func TestRunPropagatesStartError(t *testing.T) {
	src := &fakeSource{startErr: source.ErrNoDevices}
	rep := &fakeReporter{}

	err := run(t, src, rep)
	if err != source.ErrNoDevices {
		t.Fatalf("err = %v, want ErrNoDevices", err)
	}
	if rep.begun {
		t.Errorf("Start失敗後にBeginが呼ばれた")
	}
}

func TestHotplugDeviceRegisteredMidRun(t *testing.T) {
	// 2回目のPollで通知されたデバイスのイベントもその場から計測される
	src := &fakeSource{
		devices: []source.DeviceInfo{{ID: 0, Label: "event0", Name: "Mouse"}},
		late: map[int][]source.DeviceInfo{
			1: {{ID: 7, Label: "event7", Name: "Trackball"}},
		},
		batches: [][]source.Event{
			{},
			{
				{DeviceID: 7, Timestamp: 2_000_000},
				{DeviceID: 7, Timestamp: 2_004_000},
			},
		},
	}
	rep := &fakeReporter{}

	if err := run(t, src, rep); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rep.devices) != 2 {
		t.Fatalf("通知デバイス数 = %d, want 2", len(rep.devices))
	}
	if len(rep.samples) != 1 || rep.samples[0].name != "Trackball" || rep.samples[0].rate != 250 {
		t.Errorf("samples = %+v, want [Trackball 250Hz]", rep.samples)
	}
	if len(rep.summaries) != 1 || rep.summaries[0].name != "Trackball" {
		t.Errorf("summaries = %+v, want [Trackball]", rep.summaries)
	}
}

func TestRejectedEventsProduceNoOutput(t *testing.T) {
	// 同一タイムスタンプの連続はサンプルもサマリも生まない
	src := &fakeSource{
		devices: []source.DeviceInfo{{ID: 0, Label: "event0", Name: "Mouse"}},
		batches: [][]source.Event{
			{
				{DeviceID: 0, Timestamp: 1_000_000},
				{DeviceID: 0, Timestamp: 1_000_000},
				{DeviceID: 0, Timestamp: 1_000_000},
			},
		},
	}
	rep := &fakeReporter{}

	if err := run(t, src, rep); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rep.samples) != 0 {
		t.Errorf("サンプル数 = %d, want 0", len(rep.samples))
	}
	if len(rep.summaries) != 0 {
		t.Errorf("サマリ数 = %d, want 0", len(rep.summaries))
	}
}
