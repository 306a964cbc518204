package rule

// RegisterID enumerates the x86_64 general-purpose, flags, and instruction
// pointer registers accepted as named Argument values.
type RegisterID int

const (
	RegNone RegisterID = iota
	RegAL
	RegCL
	RegDL
	RegBL
	RegSPL
	RegBPL
	RegSIL
	RegDIL
	RegR8B
	RegR9B
	RegR10B
	RegR11B
	RegR12B
	RegR13B
	RegR14B
	RegR15B
	RegAX
	RegCX
	RegDX
	RegBX
	RegSP
	RegBP
	RegSI
	RegDI
	RegR8W
	RegR9W
	RegR10W
	RegR11W
	RegR12W
	RegR13W
	RegR14W
	RegR15W
	RegEAX
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI
	RegR8D
	RegR9D
	RegR10D
	RegR11D
	RegR12D
	RegR13D
	RegR14D
	RegR15D
	RegRAX
	RegRCX
	RegRDX
	RegRBX
	RegRSP
	RegRBP
	RegRSI
	RegRDI
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
	RegRIP
	RegRFLAGS
)

var registerByName = map[string]RegisterID{
	"al": RegAL, "cl": RegCL, "dl": RegDL, "bl": RegBL,
	"spl": RegSPL, "bpl": RegBPL, "sil": RegSIL, "dil": RegDIL,
	"r8b": RegR8B, "r9b": RegR9B, "r10b": RegR10B, "r11b": RegR11B,
	"r12b": RegR12B, "r13b": RegR13B, "r14b": RegR14B, "r15b": RegR15B,

	"ax": RegAX, "cx": RegCX, "dx": RegDX, "bx": RegBX,
	"sp": RegSP, "bp": RegBP, "si": RegSI, "di": RegDI,
	"r8w": RegR8W, "r9w": RegR9W, "r10w": RegR10W, "r11w": RegR11W,
	"r12w": RegR12W, "r13w": RegR13W, "r14w": RegR14W, "r15w": RegR15W,

	"eax": RegEAX, "ecx": RegECX, "edx": RegEDX, "ebx": RegEBX,
	"esp": RegESP, "ebp": RegEBP, "esi": RegESI, "edi": RegEDI,
	"r8d": RegR8D, "r9d": RegR9D, "r10d": RegR10D, "r11d": RegR11D,
	"r12d": RegR12D, "r13d": RegR13D, "r14d": RegR14D, "r15d": RegR15D,

	"rax": RegRAX, "rcx": RegRCX, "rdx": RegRDX, "rbx": RegRBX,
	"rsp": RegRSP, "rbp": RegRBP, "rsi": RegRSI, "rdi": RegRDI,
	"r8": RegR8, "r9": RegR9, "r10": RegR10, "r11": RegR11,
	"r12": RegR12, "r13": RegR13, "r14": RegR14, "r15": RegR15,

	"rip": RegRIP, "rflags": RegRFLAGS,
}

// LookupRegister resolves a register name to its RegisterID. ok is false
// for an unrecognised name.
func LookupRegister(name string) (RegisterID, bool) {
	id, ok := registerByName[name]
	return id, ok
}

var registerNames = func() map[RegisterID]string {
	m := make(map[RegisterID]string, len(registerByName))
	for name, id := range registerByName {
		m[id] = name
	}
	return m
}()

// RegisterName is the inverse of LookupRegister, used when an Argument's
// named register needs to be rendered back into the back-end protocol.
func RegisterName(id RegisterID) string { return registerNames[id] }

// RegisterSize returns the width in bytes implied by the register name,
// 0 for rflags (not a data-width register).
func RegisterSize(id RegisterID) int {
	switch {
	case id >= RegAL && id <= RegR15B:
		return 1
	case id >= RegAX && id <= RegR15W:
		return 2
	case id >= RegEAX && id <= RegR15D:
		return 4
	case id >= RegRAX && id <= RegR15, id == RegRIP:
		return 8
	default:
		return 0
	}
}
