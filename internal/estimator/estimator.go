package estimator

// HistorySize は移動平均の窓サイズ。マスクでインデックスを計算するため2のべき乗であること。
const HistorySize = 64

// DefaultMaxHz は瞬間レートのサニティ上限。これ以上はクロックの異常とみなして棄却する。
const DefaultMaxHz = 10000

// Sample は受理されたイベント1件分の計測結果
type Sample struct {
	Rate    uint64 // 瞬間レート（Hz）
	Average uint64 // 直近HistorySize件の移動平均（Hz）
}

// RateEstimator はデバイス1つ分のイベントレートを推定する状態機械。
// 並行アクセスは想定しない（ディスパッチャのスレッドからのみ触ること）。
type RateEstimator struct {
	history [HistorySize]uint64
	count   uint64 // 受理したサンプルの累計。リングの書き込み位置もここから導出する
	average uint64
	prev    uint64 // 前回のタイムスタンプ。0は「基準点なし」を意味する
	scale   uint64 // クロック単位から秒への換算係数
	maxHz   uint64 // サニティ上限。0で無効
}

// New は指定した換算係数とサニティ上限でRateEstimatorを作成する
func New(scale, maxHz uint64) *RateEstimator {
	return &RateEstimator{scale: scale, maxHz: maxHz}
}

// Observe はイベントのタイムスタンプを1つ観測する。
// サンプルが受理された場合のみ計測結果とtrueを返す。
// 最初の観測は基準点の確立のみを行い、ゼロ差分・レンジ外のレートは黙って棄却する。
func (e *RateEstimator) Observe(timestamp uint64) (Sample, bool) {
	if e.prev == 0 {
		e.prev = timestamp
		return Sample{}, false
	}

	delta := timestamp - e.prev
	// 受理の可否にかかわらず基準点は常に進める
	e.prev = timestamp

	if delta == 0 {
		return Sample{}, false
	}

	rate := e.scale / delta
	if rate == 0 || (e.maxHz != 0 && rate >= e.maxHz) {
		return Sample{}, false
	}

	e.count++
	e.history[e.count&(HistorySize-1)] = rate
	e.average = e.recompute()

	return Sample{Rate: rate, Average: e.average}, true
}

// recompute は有効なスロットの整数平均を毎回計算し直す。
// 窓が小さいため増分計算による誤差蓄積を避けてO(HistorySize)で全計算する。
func (e *RateEstimator) recompute() uint64 {
	var sum uint64
	if e.count >= HistorySize {
		for _, hz := range e.history {
			sum += hz
		}
		return sum / HistorySize
	}
	// 巻き戻し前はスロット1..countのみが有効
	for i := uint64(1); i <= e.count; i++ {
		sum += e.history[i]
	}
	return sum / e.count
}

// Average は現在の移動平均を返す。受理されたサンプルがなければ0。
func (e *RateEstimator) Average() uint64 {
	return e.average
}

// Count は受理したサンプルの累計を返す
func (e *RateEstimator) Count() uint64 {
	return e.count
}
