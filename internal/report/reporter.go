package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/char5742/evhz/internal/estimator"
	"github.com/char5742/evhz/internal/source"
)

// Reporter は計測結果の出力先を表すインターフェース
type Reporter interface {
	// Device はデバイスの検出を通知する。Begin前は起動時一覧に蓄積され、
	// Begin後（ホットプラグ）は即座に1行出力される。
	Device(info source.DeviceInfo)
	// Begin は起動時のデバイス一覧と操作の案内を出力する
	Begin()
	// Sample は受理されたサンプル1件を出力する
	Sample(name string, s estimator.Sample)
	// Summary は終了時のデバイスごとの平均を出力する
	Summary(name string, average uint64)
}

// Console は標準出力向けのReporter実装
type Console struct {
	w       io.Writer
	verbose bool
	hint    bool // 対話的な案内（CTRL-Cの説明など）を出すかどうか
	begun   bool
	rows    [][]string
}

// NewConsole はコンソール向けのReporterを作成する。
// verboseがfalseの場合、デバイス一覧とイベントごとの出力は抑制される。
func NewConsole(w io.Writer, verbose, hint bool) *Console {
	return &Console{w: w, verbose: verbose, hint: hint}
}

func (c *Console) Device(info source.DeviceInfo) {
	if c.begun {
		if c.verbose {
			fmt.Fprintf(c.w, "%s: %s\n", info.Label, info.Name)
		}
		return
	}
	c.rows = append(c.rows, []string{info.Label, info.Name})
}

func (c *Console) Begin() {
	if c.verbose && len(c.rows) > 0 {
		table := tablewriter.NewWriter(c.w)
		table.SetHeader([]string{"Device", "Name"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.AppendBulk(c.rows)
		table.Render()
		fmt.Fprintln(c.w)
	}
	if c.hint {
		fmt.Fprintln(c.w, "Press CTRL-C to exit.")
		fmt.Fprintln(c.w)
	}
	c.begun = true
}

func (c *Console) Sample(name string, s estimator.Sample) {
	if !c.verbose {
		return
	}
	fmt.Fprintf(c.w, "%s: Latest %5dHz, Average %5dHz\n", name, s.Rate, s.Average)
}

func (c *Console) Summary(name string, average uint64) {
	fmt.Fprintf(c.w, "Average for %s: %5dHz\n", name, average)
}
