package assembler

import (
	"sort"

	"github.com/Urethramancer/tabasm/project"
)

// EncodedUnit is a run of bytes produced by one statement or vector.
type EncodedUnit struct {
	Address uint32
	Bytes   []byte
	Span    Span
}

// Segment is a contiguous run of output.
type Segment struct {
	Start uint32
	Data  []byte
}

// End returns the address one past the last byte.
func (s Segment) End() uint32 {
	return s.Start + uint32(len(s.Data))
}

// Image is the assembled program: sorted, non-overlapping segments.
type Image struct {
	segs []Segment
}

// buildImage merges units into segments. Writing an address twice is an
// *OverlapError naming both writers.
func buildImage(units []EncodedUnit) (*Image, error) {
	sorted := make([]EncodedUnit, 0, len(units))
	for _, u := range units {
		if len(u.Bytes) > 0 {
			sorted = append(sorted, u)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	img := &Image{}
	var (
		end   uint64
		owner Span
		first = true
	)
	for _, u := range sorted {
		if !first && uint64(u.Address) < end {
			return nil, &OverlapError{Address: u.Address, Spans: []Span{owner, u.Span}}
		}
		if n := len(img.segs); n > 0 && img.segs[n-1].End() == u.Address {
			img.segs[n-1].Data = append(img.segs[n-1].Data, u.Bytes...)
		} else {
			img.segs = append(img.segs, Segment{Start: u.Address, Data: append([]byte(nil), u.Bytes...)})
		}
		if e := uint64(u.Address) + uint64(len(u.Bytes)); first || e > end {
			end, owner = e, u.Span
		}
		first = false
	}
	return img, nil
}

// apply writes a patch. Patches may overwrite code and may extend the image.
func (img *Image) apply(p project.Patch) {
	data := p.Bytes()
	if len(data) == 0 {
		return
	}
	addr := p.Address
	end := uint64(addr) + uint64(len(data))
	covered := make([]bool, len(data))
	for i := range img.segs {
		s := &img.segs[i]
		lo := max(uint64(addr), uint64(s.Start))
		hi := min(end, uint64(s.End()))
		for a := lo; a < hi; a++ {
			s.Data[a-uint64(s.Start)] = data[a-uint64(addr)]
			covered[a-uint64(addr)] = true
		}
	}
	for i := 0; i < len(data); {
		if covered[i] {
			i++
			continue
		}
		j := i
		for j < len(data) && !covered[j] {
			j++
		}
		img.segs = append(img.segs, Segment{Start: addr + uint32(i), Data: append([]byte(nil), data[i:j]...)})
		i = j
	}
	img.coalesce()
}

// coalesce sorts the segments and joins those that touch.
func (img *Image) coalesce() {
	sort.Slice(img.segs, func(i, j int) bool { return img.segs[i].Start < img.segs[j].Start })
	out := img.segs[:0]
	for _, s := range img.segs {
		if n := len(out); n > 0 && out[n-1].End() == s.Start {
			out[n-1].Data = append(out[n-1].Data, s.Data...)
			continue
		}
		out = append(out, s)
	}
	img.segs = out
}

// Segments returns the segments in address order. The slices must not be
// modified.
func (img *Image) Segments() []Segment {
	return img.segs
}

// Empty reports whether the image holds no bytes.
func (img *Image) Empty() bool {
	return len(img.segs) == 0
}

// Start returns the lowest address written.
func (img *Image) Start() uint32 {
	if img.Empty() {
		return 0
	}
	return img.segs[0].Start
}

// End returns the address one past the highest byte written.
func (img *Image) End() uint32 {
	if img.Empty() {
		return 0
	}
	return img.segs[len(img.segs)-1].End()
}

// Bytes flattens the image from its lowest to its highest address, filling
// gaps with fill.
func (img *Image) Bytes(fill byte) []byte {
	if img.Empty() {
		return nil
	}
	base := img.Start()
	out := make([]byte, img.End()-base)
	if fill != 0 {
		for i := range out {
			out[i] = fill
		}
	}
	for _, s := range img.segs {
		copy(out[s.Start-base:], s.Data)
	}
	return out
}

// At returns the byte at addr.
func (img *Image) At(addr uint32) (byte, bool) {
	i := sort.Search(len(img.segs), func(i int) bool { return img.segs[i].End() > addr })
	if i < len(img.segs) && img.segs[i].Start <= addr {
		return img.segs[i].Data[addr-img.segs[i].Start], true
	}
	return 0, false
}
