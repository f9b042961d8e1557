package loader

// Status codes carried in the reply frame's opcode/status field (spec
// §6). Not every code the wire format reserves has a handler in this
// core (5/10 are CAN-specific and never emitted here).
const (
	StatusOK                 byte = 0
	StatusInvalidOpcode      byte = 2
	StatusInvalidMessage     byte = 3
	StatusTimeout            byte = 4
	StatusFormatInProgress   byte = 6
	StatusCannotFormat       byte = 7
	StatusWrongParameterCount byte = 9
	StatusParameterOutOfRange byte = 27
	StatusVerifyFailed        byte = 29
)
