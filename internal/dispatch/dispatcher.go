package dispatch

import (
	"sync/atomic"

	"github.com/char5742/evhz/internal/clock"
	"github.com/char5742/evhz/internal/estimator"
	"github.com/char5742/evhz/internal/report"
	"github.com/char5742/evhz/internal/source"
)

// Dispatcher はイベントソースを駆動し、デバイスごとのRateEstimatorへイベントを振り分ける。
// ループは単一のゴルーチンで実行され、estimatorの状態はここからのみ変更される。
// quitフラグだけがシグナルハンドラから書き込まれる共有状態で、反復ごとに1回読む。
type Dispatcher struct {
	src   source.Source
	rep   report.Reporter
	quit  *atomic.Bool
	maxHz uint64

	estimators map[int]*estimator.RateEstimator
	names      map[int]string
	order      []int // デバイスの通知順。終了時のサマリ出力はこの順で行う
}

// New はDispatcherを作成する
func New(src source.Source, rep report.Reporter, quit *atomic.Bool, maxHz uint64) *Dispatcher {
	return &Dispatcher{
		src:        src,
		rep:        rep,
		quit:       quit,
		maxHz:      maxHz,
		estimators: make(map[int]*estimator.RateEstimator),
		names:      make(map[int]string),
	}
}

// register はデバイスの通知を受けてRateEstimatorを割り当てる。
// ソースはイベントをemitする前に必ずデバイスをannounceする契約なので、
// ここを通らないデバイスのイベントが届くことはない。
func (d *Dispatcher) register(info source.DeviceInfo) {
	if _, ok := d.estimators[info.ID]; ok {
		return
	}
	d.estimators[info.ID] = estimator.New(clock.Scale, d.maxHz)
	d.names[info.ID] = info.Name
	d.order = append(d.order, info.ID)
	d.rep.Device(info)
}

// Run はイベントループを実行する。quitフラグが立つまでブロックし、
// 終了時に受理サンプルのあるデバイスのサマリを出力してソースを解放する。
func (d *Dispatcher) Run() error {
	if err := d.src.Start(d.register); err != nil {
		return err
	}
	defer d.src.Close()

	d.rep.Begin()

	for !d.quit.Load() {
		if err := d.src.Poll(d.route); err != nil {
			return err
		}
	}

	d.summarize()
	return nil
}

func (d *Dispatcher) route(ev source.Event) {
	est, ok := d.estimators[ev.DeviceID]
	if !ok {
		return
	}
	if sample, ok := est.Observe(ev.Timestamp); ok {
		d.rep.Sample(d.names[ev.DeviceID], sample)
	}
}

// summarize は移動平均が非ゼロのデバイスについて最終サマリを出力する
func (d *Dispatcher) summarize() {
	for _, id := range d.order {
		if avg := d.estimators[id].Average(); avg != 0 {
			d.rep.Summary(d.names[id], avg)
		}
	}
}
