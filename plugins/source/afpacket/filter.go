package afpacket

import "golang.org/x/net/bpf"

const (
	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
)

// ipv4Filter accepts untagged or single-tagged IPv4 frames and keeps up
// to snapLen bytes of each.
func ipv4Filter(snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipTrue: 3},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeVLAN, SkipFalse: 3},
		bpf.LoadAbsolute{Off: 16, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

func assembleIPv4Filter(snapLen uint32) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(ipv4Filter(snapLen))
}
