package simrand

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// IDGen mints prefixed identifiers in the processor style the downstream
// consumers expect (sub_…, in_…, pay_…). UUIDs are drawn from the injected
// Source rather than crypto/rand so identifiers are seed-deterministic.
type IDGen struct {
	r Source
}

// NewIDGen returns an identifier generator backed by r.
func NewIDGen(r Source) *IDGen {
	return &IDGen{r: r}
}

func (g *IDGen) token(n int) string {
	u, err := uuid.NewRandomFromReader(readerFunc{g.r})
	if err != nil {
		// The Source never fails a read; keep uuid's contract visible anyway.
		panic(err)
	}
	s := hex.EncodeToString(u[:])
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

func (g *IDGen) Subscriber() string   { return "cus_" + g.token(14) }
func (g *IDGen) Subscription() string { return "sub_" + g.token(24) }
func (g *IDGen) Invoice() string      { return "in_" + g.token(24) }
func (g *IDGen) LineItem() string     { return "il_" + g.token(24) }
func (g *IDGen) Payment() string      { return "pay_" + g.token(24) }
func (g *IDGen) UsageRecord() string  { return "mbur_" + g.token(24) }
func (g *IDGen) Transfer() string     { return "tr_" + g.token(24) }
func (g *IDGen) Event() string        { return "evt_" + g.token(24) }

// readerFunc adapts a Source to io.Reader for uuid.NewRandomFromReader.
type readerFunc struct {
	s Source
}

func (r readerFunc) Read(p []byte) (int, error) {
	return r.s.Read(p)
}
