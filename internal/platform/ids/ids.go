package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock はテスト用
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

type IDGen interface {
	New() (string, error)
}

// ULIDGen は同一ミリ秒内でも単調増加する ULID を返す
type ULIDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGen() *ULIDGen {
	return &ULIDGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ULIDGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// TmpNumber は UNIQUE 制約を満たす仮番号（INSERT 後に確定番号へ置換する）
func TmpNumber() string {
	return "TMP-" + ulid.Make().String()
}

// SeqGen はテスト用の連番 ID
type SeqGen struct {
	mu     sync.Mutex
	Prefix string
	n      int
}

func (g *SeqGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.Prefix + pad(g.n), nil
}

func pad(n int) string {
	const digits = "0123456789"
	buf := []byte("00000000000000000000000000")
	for i := len(buf) - 1; i >= 0 && n > 0; i-- {
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf)
}
