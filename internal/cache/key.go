package cache

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"quantlab/internal/model"
)

// Fingerprint is a cheap proxy for a bar series: count, endpoints and the
// last close. It does not hash interior bars, so correcting a middle bar
// without touching the endpoints is invisible to the cache.
type Fingerprint struct {
	Count     int
	FirstTime int64
	LastTime  int64
	LastClose uint64 // math.Float64bits, so NaN and -0 compare exactly
}

// FingerprintOf summarises bars.
func FingerprintOf(bars []model.Bar) Fingerprint {
	if len(bars) == 0 {
		return Fingerprint{}
	}
	last := bars[len(bars)-1]
	return Fingerprint{
		Count:     len(bars),
		FirstTime: bars[0].Time,
		LastTime:  last.Time,
		LastClose: math.Float64bits(last.Close),
	}
}

// AuxFingerprint summarises the auxiliary datasets the same way, so an
// indicator that reads intrabar or breadth data is recomputed when that
// data grows or its tail changes.
type AuxFingerprint struct {
	Intrabar       Fingerprint
	BreadthCount   int
	BreadthFirst   int64
	BreadthLast    int64
	BreadthLastNet uint64
}

// AuxFingerprintOf summarises aux; a nil aux is the zero fingerprint.
func AuxFingerprintOf(aux *model.Aux) AuxFingerprint {
	if aux == nil {
		return AuxFingerprint{}
	}
	fp := AuxFingerprint{Intrabar: FingerprintOf(aux.Intrabar)}
	if n := len(aux.Breadth); n > 0 {
		last := aux.Breadth[n-1]
		fp.BreadthCount = n
		fp.BreadthFirst = aux.Breadth[0].Time
		fp.BreadthLast = last.Time
		fp.BreadthLastNet = math.Float64bits(last.Advances - last.Declines)
	}
	return fp
}

// Key identifies one cached computation. It is comparable and used directly
// as a map key.
type Key struct {
	InstanceID string
	Kind       string
	Params     string
	Data       Fingerprint
	Aux        AuxFingerprint
}

// NewKey builds the key for an instance over bars and aux. params should be
// the normalized parameter set so that equivalent spellings share a key.
func NewKey(instanceID, kind string, params model.Params, bars []model.Bar, aux *model.Aux) Key {
	return Key{
		InstanceID: instanceID,
		Kind:       kind,
		Params:     CanonicalParams(params),
		Data:       FingerprintOf(bars),
		Aux:        AuxFingerprintOf(aux),
	}
}

// String renders the key unambiguously; it names the singleflight group.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(k.InstanceID))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(k.Kind))
	b.WriteByte('|')
	b.WriteString(k.Params)
	b.WriteByte('|')
	writeFingerprint(&b, k.Data)
	b.WriteByte('|')
	writeFingerprint(&b, k.Aux.Intrabar)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Aux.BreadthCount))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(k.Aux.BreadthFirst, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(k.Aux.BreadthLast, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(k.Aux.BreadthLastNet, 16))
	return b.String()
}

func writeFingerprint(b *strings.Builder, fp Fingerprint) {
	b.WriteString(strconv.Itoa(fp.Count))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(fp.FirstTime, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(fp.LastTime, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(fp.LastClose, 16))
}

// CanonicalParams serializes params independently of map order. Keys are
// sorted and quoted, and every value carries a type tag, so a number and
// the string spelling of it never collide.
func CanonicalParams(p model.Params) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		v := p[k]
		if v.IsStr {
			b.WriteString("s:")
			b.WriteString(strconv.Quote(v.Str))
		} else {
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(v.Num, 'g', -1, 64))
		}
	}
	b.WriteByte('}')
	return b.String()
}
