package source

import "errors"

// ErrNoDevices は1つも入力デバイスを開けなかったことを示す
var ErrNoDevices = errors.New("入力デバイスが見つかりませんでした")

// Event は多重化されたデバイスイベント1件を表す
type Event struct {
	DeviceID  int
	Timestamp uint64 // クロック単位（マイクロ秒）
}

// DeviceInfo は検出されたデバイスの情報
type DeviceInfo struct {
	ID    int
	Label string // "event3" や "device0" のようなプラットフォーム上の識別子
	Name  string // 表示名
}

// Source は入力イベントのキャプチャモデルを抽象化するインターフェース。
// 実装は3種類: select(2)で多重化するevdev、IOHIDManagerのコールバック、
// raw inputのメッセージポンプ。OSごとの契約が異なるため共通実装は持たない。
//
// Startで通知されていないデバイスのイベントをemitしてはならない。
// プラットフォームのリソースはSourceが所有し、Closeで一度だけ解放する。
type Source interface {
	// Start はプラットフォームのリソースを確保し、検出したデバイスをannounceで通知する
	Start(announce func(DeviceInfo)) error
	// Poll は1回分のイベント待ちを行い、取得したイベントごとにemitを呼ぶ。
	// 待ち時間は設定されたタイムアウトで打ち切られ、イベントがなくても戻る。
	// 実行中に検出された新しいデバイスはemitより先にannounceされる。
	Poll(emit func(Event)) error
	Close() error
}
