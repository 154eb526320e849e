package codegen

import "github.com/lollipopkit/lua54/binchunk"

func toProto(fi *funcInfo) *binchunk.Prototype {
	proto := &binchunk.Prototype{
		Source:          fi.source,
		LineDefined:     fi.line,
		LastLineDefined: fi.lastLine,
		NumParams:       byte(fi.numParams),
		MaxStackSize:    fi.maxRegs,
		Code:            fi.insts,
		Constants:       getConstants(fi),
		Upvalues:        getUpvalues(fi),
		Protos:          toProtos(fi.subFuncs),
		LineInfo:        toInt32Line(fi.lineNums),
		LocVars:         getLocVars(fi),
	}
	if proto.MaxStackSize < 2 {
		proto.MaxStackSize = 2
	}
	proto.IsVararg = fi.isVararg
	return proto
}

func toInt32Line(lines []uint32) []int32 {
	out := make([]int32, len(lines))
	for i, l := range lines {
		out[i] = int32(l)
	}
	return out
}

func toProtos(fis []*funcInfo) []*binchunk.Prototype {
	protos := make([]*binchunk.Prototype, len(fis))
	for i := range fis {
		protos[i] = toProto(fis[i])
	}
	return protos
}

func getConstants(fi *funcInfo) []interface{} {
	consts := make([]interface{}, len(fi.constants))
	for k, idx := range fi.constants {
		consts[idx] = k
	}
	return consts
}

func getLocVars(fi *funcInfo) []binchunk.LocVar {
	locVars := make([]binchunk.LocVar, len(fi.locVars))
	for i, lv := range fi.locVars {
		locVars[i] = binchunk.LocVar{VarName: lv.name, Slot: lv.slot, StartPC: lv.startPC, EndPC: lv.endPC}
	}
	return locVars
}

func getUpvalues(fi *funcInfo) []binchunk.Upvalue {
	upvals := make([]binchunk.Upvalue, len(fi.upvalues))
	for name, uv := range fi.upvalues {
		if uv.locVarSlot >= 0 {
			upvals[uv.index] = binchunk.Upvalue{Instack: 1, Idx: byte(uv.locVarSlot), Name: name}
		} else {
			upvals[uv.index] = binchunk.Upvalue{Instack: 0, Idx: byte(uv.upvalIndex), Name: name}
		}
	}
	return upvals
}
