package input

// Motion is the relative movement of one report frame.
type Motion struct {
	DX, DY int32
}

// Aggregator folds REL_X/REL_Y events into one Motion per SYN_REPORT, the
// way the kernel groups a single mouse report.
type Aggregator struct {
	dx, dy  int32
	dropped bool
}

// Feed consumes ev and returns a Motion when a frame with movement ends.
func (a *Aggregator) Feed(ev Event) (Motion, bool) {
	switch ev.Type {
	case EV_REL:
		if a.dropped {
			return Motion{}, false
		}
		switch ev.Code {
		case REL_X:
			a.dx += ev.Value
		case REL_Y:
			a.dy += ev.Value
		}

	case EV_SYN:
		switch ev.Code {
		case SYN_DROPPED:
			// The kernel lost events; discard until the next report.
			a.dx, a.dy = 0, 0
			a.dropped = true
		case SYN_REPORT:
			if a.dropped {
				a.dropped = false
				return Motion{}, false
			}
			m := Motion{DX: a.dx, DY: a.dy}
			a.dx, a.dy = 0, 0
			if m.DX != 0 || m.DY != 0 {
				return m, true
			}
		}
	}
	return Motion{}, false
}
