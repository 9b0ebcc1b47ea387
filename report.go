package pmcheck

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Report holds the results of a probe run, one set per protocol.
type Report struct {
	UPnP   []Result
	NATPMP []Result
}

func (r *Report) record(res Result) {
	switch res.Protocol {
	case ProtocolUPnP:
		r.UPnP = append(r.UPnP, res)
	case ProtocolNATPMP:
		r.NATPMP = append(r.NATPMP, res)
	}
}

// Lookup returns the result for port under protocol.
func (r *Report) Lookup(protocol Protocol, port int) (Result, bool) {
	results := r.UPnP
	if protocol == ProtocolNATPMP {
		results = r.NATPMP
	}
	for _, res := range results {
		if res.Port == port {
			return res, true
		}
	}
	return Result{}, false
}

// Lines renders the report: UPnP results first, then NAT-PMP, each group
// sorted by port.
func (r *Report) Lines() []string {
	lines := make([]string, 0, len(r.UPnP)+len(r.NATPMP))
	for _, group := range [][]Result{r.UPnP, r.NATPMP} {
		sorted := make([]Result, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Port < sorted[j].Port
		})
		for _, res := range sorted {
			lines = append(lines, fmt.Sprintf("Can map %d on %s? %t", res.Port, res.Protocol, res.Success))
		}
	}
	return lines
}

// WriteTo writes one line per result to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, line := range r.Lines() {
		written, err := fmt.Fprintln(bw, line)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
