package clock

// Scale は1秒あたりのクロック単位数。クロックはマイクロ秒単位の値を返す。
const Scale = 1_000_000

// Clock は単調増加するタイムスタンプを供給するインターフェース。
// 壁時計の調整（NTPなど）の影響を受けないこと。
type Clock interface {
	// Now は単調クロックの現在値をマイクロ秒単位で返す
	Now() uint64
}
