package vm

// Instruction is a single 32-bit bytecode word, laid out as:
//
//	[  B:9  ][  C:9  ][ A:8  ][OP:6]   IABC
//	[      Bx:18     ][ A:8  ][OP:6]   IABx / IAx(26 bits, no A)
//	[     sBx:18     ][ A:8  ][OP:6]   IAsBx
type Instruction uint32

func Encode(op, a, b, c int) Instruction {
	return Instruction(uint32(b)<<23 | uint32(c)<<14 | uint32(a)<<6 | uint32(op))
}

func EncodeABx(op, a, bx int) Instruction {
	return Instruction(uint32(bx)<<14 | uint32(a)<<6 | uint32(op))
}

func EncodeAsBx(op, a, sbx int) Instruction {
	return Instruction(uint32(sbx+MaxArgSBx)<<14 | uint32(a)<<6 | uint32(op))
}

func EncodeAx(op, ax int) Instruction {
	return Instruction(uint32(ax)<<6 | uint32(op))
}

func (i Instruction) Opcode() int { return int(i & 0x3F) }

func (i Instruction) ABC() (a, b, c int) {
	a = int(i >> 6 & 0xFF)
	c = int(i >> 14 & 0x1FF)
	b = int(i >> 23 & 0x1FF)
	return
}

func (i Instruction) ABx() (a, bx int) {
	a = int(i >> 6 & 0xFF)
	bx = int(i >> 14)
	return
}

func (i Instruction) AsBx() (a, sbx int) {
	a, bx := i.ABx()
	return a, bx - MaxArgSBx
}

func (i Instruction) Ax() int { return int(i >> 6) }

func (i Instruction) OpName() string { return Name(i.Opcode()) }
