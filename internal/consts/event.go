package consts

// イベントタイプの定数（input-event-codes.hより）
const (
	EvSyn = 0x00 // 同期イベント
	EvKey = 0x01 // キーイベント
	EvRel = 0x02 // 相対座標イベント
	EvAbs = 0x03 // 絶対座標イベント
)

// evdevデバイス制御用の定数
const (
	NameSize   = 128        // デバイス名の最大サイズ（127文字+終端）
	EviocgName = 0x80804506 // デバイス名取得用のIOCTL（EVIOCGNAME、長さ128）
	EventSize  = 24         // input_eventレコードのサイズ（64bit環境）
	MaxDevices = 400        // 列挙する候補デバイス数の上限
)
