package runtime

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
	"execution-engine/pkg/value"
)

// hostCtx is the per-frame state every host function closure in
// registerHost closes over: the Wasm linear memory view, the frame, and
// (for call_contract) the Runtime needed to recurse. Grounded on
// core/virtual_machine.go's hostCtx{store, gas, tx, rec, mem}.
type hostCtx struct {
	mem   *wasmer.Memory
	frame *Frame
	rt    *Runtime
}

func i32(v int32) wasmer.Value { return wasmer.NewI32(v) }
func i64(v int64) wasmer.Value { return wasmer.NewI64(v) }

func (h *hostCtx) read(ptr, ln int32) []byte {
	data := h.mem.Data()
	out := make([]byte, ln)
	copy(out, data[ptr:ptr+ln])
	return out
}

func (h *hostCtx) write(ptr int32, data []byte) {
	copy(h.mem.Data()[ptr:], data)
}

const (
	hostOK  int32 = 0
	hostErr int32 = -1
)

// registerHost builds the "env" import namespace for one Wasm instance,
// matching core/virtual_machine.go's registerHost shape but against the
// host function set of spec.md §4.3.
func registerHost(store *wasmer.Store, h *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32ty := wasmer.ValueKind(wasmer.I32)
	i64ty := wasmer.ValueKind(wasmer.I64)

	fn := func(params, results []wasmer.ValueKind, body func([]wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
		return wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(params...), wasmer.NewValueTypes(results...)), body)
	}

	// gas(n u32) -> i32 : charges n gas units against the frame's meter,
	// trapping with GasLimit on overrun (spec.md §4.3).
	hostGas := fn([]wasmer.ValueKind{i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		n := uint64(uint32(args[0].I32()))
		if err := h.frame.Gas.Consume(n); err != nil {
			return nil, err
		}
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// read(key_ptr, key_size, out_size_ptr) -> i32
	hostRead := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kPtr, kLen, outSizePtr := args[0].I32(), args[1].I32(), args[2].I32()
		k, err := decodeKeyArg(h, kPtr, kLen)
		if err != nil {
			return nil, err
		}
		if k.Kind == key.KindURef {
			if err := h.frame.CheckURef(k.Addr, key.Read); err != nil {
				return nil, err
			}
		}
		v, err := h.frame.TC.Read(k)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		h.frame.buffer = v.ToBytes()
		h.write(outSizePtr, u32le(uint32(len(h.frame.buffer))))
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// read_host_buffer(dst_ptr, dst_len) -> i32 : copies the last parked
	// buffer (from read/get_key/call_contract/get_caller) into Wasm
	// memory at dst_ptr.
	hostReadBuffer := fn([]wasmer.ValueKind{i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr, dstLen := args[0].I32(), args[1].I32()
		if int(dstLen) < len(h.frame.buffer) {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		h.write(dstPtr, h.frame.buffer)
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// write(key_ptr, key_size, val_ptr, val_size) -> i32
	hostWrite := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kPtr, kLen, vPtr, vLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		k, err := decodeKeyArg(h, kPtr, kLen)
		if err != nil {
			return nil, err
		}
		if k.Kind == key.KindURef {
			if err := h.frame.CheckURef(k.Addr, key.Write); err != nil {
				return nil, err
			}
		}
		v, _, err := value.FromBytes(h.read(vPtr, vLen))
		if err != nil {
			return nil, err
		}
		h.frame.TC.Write(k, v)
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// add(key_ptr, key_size, val_ptr, val_size) -> i32
	hostAdd := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kPtr, kLen, vPtr, vLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		k, err := decodeKeyArg(h, kPtr, kLen)
		if err != nil {
			return nil, err
		}
		if k.Kind == key.KindURef {
			if err := h.frame.CheckURef(k.Addr, key.Add); err != nil {
				return nil, err
			}
		}
		v, _, err := value.FromBytes(h.read(vPtr, vLen))
		if err != nil {
			return nil, err
		}
		delta, err := deltaFromValue(v)
		if err != nil {
			return nil, err
		}
		if err := h.frame.TC.Add(k, delta); err != nil {
			return nil, err
		}
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// new_uref(init_ptr, init_len, out_addr_ptr) -> i32 : mints a fresh
	// address from the frame's deterministic PRNG, grants it
	// READ_ADD_WRITE, writes init through the tracking copy, and makes it
	// known to this frame (spec.md §4.3).
	hostNewURef := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		initPtr, initLen, outAddrPtr := args[0].I32(), args[1].I32(), args[2].I32()
		init, _, err := value.FromBytes(h.read(initPtr, initLen))
		if err != nil {
			return nil, err
		}
		addr := deriveURefAddress(h.frame.Caller, h.frame.DeployNonce, h.frame.counter.next())
		h.frame.GrantURef(addr, key.ReadAddWrite)
		h.frame.TC.Write(key.URef(addr, key.ReadAddWrite), init)
		h.write(outAddrPtr, addr[:])
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// put_key(name_ptr, name_size, key_ptr, key_size) -> i32
	hostPutKey := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		namePtr, nameLen, kPtr, kLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		name := string(h.read(namePtr, nameLen))
		k, err := decodeKeyArg(h, kPtr, kLen)
		if err != nil {
			return nil, err
		}
		if k.Kind == key.KindURef && !h.frame.knownURefHas(k.Addr) {
			return nil, &ErrForgedReference{Addr: k.Addr}
		}
		if err := h.frame.TC.Add(h.frame.Owner, transform.AddKeysOp(map[string]key.Key{name: k})); err != nil {
			return nil, err
		}
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// get_key(name_ptr, name_size, out_size_ptr) -> i32
	hostGetKey := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		namePtr, nameLen, outSizePtr := args[0].I32(), args[1].I32(), args[2].I32()
		name := string(h.read(namePtr, nameLen))
		owner, err := h.frame.TC.Read(h.frame.Owner)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		named, ok := namedKeysOf(*owner)
		if !ok {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		k, ok := named[name]
		if !ok {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		h.frame.buffer = k.ToBytes()
		h.write(outSizePtr, u32le(uint32(len(h.frame.buffer))))
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// remove_key(name_ptr, name_size) -> i32
	hostRemoveKey := fn([]wasmer.ValueKind{i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		namePtr, nameLen := args[0].I32(), args[1].I32()
		name := string(h.read(namePtr, nameLen))
		owner, err := h.frame.TC.Read(h.frame.Owner)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		updated, ok := removeNamedKey(*owner, name)
		if !ok {
			return []wasmer.Value{i32(hostErr)}, nil
		}
		h.frame.TC.Write(h.frame.Owner, updated)
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// call_contract(hash_ptr, entry_ptr, entry_len, args_ptr, args_len, out_size_ptr) -> i32
	hostCallContract := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty, i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		hashPtr, entryPtr, entryLen, argsPtr, argsLen, outSizePtr := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32(), args[5].I32()
		var hash [32]byte
		copy(hash[:], h.read(hashPtr, 32))
		entry := string(h.read(entryPtr, entryLen))
		callArgs := h.read(argsPtr, argsLen)

		ret, err := h.rt.callContract(h.frame, hash, entry, callArgs)
		if err != nil {
			return nil, err
		}
		h.frame.buffer = ret
		h.write(outSizePtr, u32le(uint32(len(ret))))
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// transfer_from_purse_to_purse(src_ptr, dst_ptr, amount_ptr, amount_len) -> i32
	// implemented in terms of call_contract on the mint contract (spec.md §4.3).
	hostTransfer := fn([]wasmer.ValueKind{i32ty, i32ty, i32ty, i32ty}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		srcPtr, dstPtr, amtPtr, amtLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		var src, dst [32]byte
		copy(src[:], h.read(srcPtr, 32))
		copy(dst[:], h.read(dstPtr, 32))
		amount := h.read(amtPtr, amtLen)

		w := transferArgs(src, dst, amount)
		if _, err := h.rt.callContract(h.frame, h.frame.MintContractHash, "transfer", w); err != nil {
			return nil, err
		}
		return []wasmer.Value{i32(hostOK)}, nil
	})

	// revert(code u32) : aborts the deploy; code surfaces to the client.
	hostRevert := fn([]wasmer.ValueKind{i32ty}, []wasmer.ValueKind{}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return nil, &RevertError{Code: uint32(args[0].I32())}
	})

	// get_caller() -> i32 : parks the caller's public key in the host
	// buffer, returns its length.
	hostGetCaller := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{i32ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		h.frame.buffer = append([]byte(nil), h.frame.Caller...)
		return []wasmer.Value{i32(int32(len(h.frame.buffer)))}, nil
	})

	// get_blocktime() -> i64
	hostGetBlocktime := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{i64ty}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		return []wasmer.Value{i64(int64(h.frame.BlockTime))}, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"gas":                          hostGas,
		"read":                         hostRead,
		"read_host_buffer":             hostReadBuffer,
		"write":                        hostWrite,
		"add":                          hostAdd,
		"new_uref":                     hostNewURef,
		"put_key":                      hostPutKey,
		"get_key":                      hostGetKey,
		"remove_key":                   hostRemoveKey,
		"call_contract":                hostCallContract,
		"transfer_from_purse_to_purse": hostTransfer,
		"revert":                       hostRevert,
		"get_caller":                   hostGetCaller,
		"get_blocktime":                hostGetBlocktime,
	})

	return imports
}

// decodeKeyArg reads a serialized Key out of Wasm memory. It performs no
// capability check itself: each host function applies CheckURef (or
// knownURefHas, for put_key) to a decoded URef key.
func decodeKeyArg(h *hostCtx, ptr, ln int32) (key.Key, error) {
	k, _, err := key.FromBytes(h.read(ptr, ln))
	if err != nil {
		return key.Key{}, err
	}
	return k, nil
}

func (f *Frame) knownURefHas(addr [32]byte) bool {
	_, ok := f.knownURefs[addr]
	return ok
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// deltaFromValue maps a Value decoded from a Wasm add() call onto the
// corresponding Transform: Int32/UInt512 payloads become numeric deltas,
// a NamedKey payload becomes a single-entry AddKeys.
func deltaFromValue(v value.Value) (transform.Transform, error) {
	switch v.Kind {
	case value.KindInt32:
		return transform.AddInt32(v.I32), nil
	case value.KindUInt512:
		return transform.AddUInt512(v.U512), nil
	case value.KindNamedKey:
		return transform.AddKeysOp(map[string]key.Key{v.NamedKey: v.NamedValue}), nil
	default:
		return transform.Transform{}, transform.ErrTypeMismatch
	}
}

func namedKeysOf(v value.Value) (map[string]key.Key, bool) {
	switch v.Kind {
	case value.KindAccount:
		return v.Acc.NamedKeys, true
	case value.KindContract:
		return v.Contract.NamedKeys, true
	default:
		return nil, false
	}
}

// removeNamedKey returns a copy of v with name deleted from its
// named_keys map (remove_key is staged as a full Write, not an algebra
// transform, since the algebra has no "remove" op).
func removeNamedKey(v value.Value, name string) (value.Value, bool) {
	switch v.Kind {
	case value.KindAccount:
		clone := v.Acc.Clone()
		delete(clone.NamedKeys, name)
		return value.NewAccount(clone), true
	case value.KindContract:
		clone := v.Contract.Clone()
		delete(clone.NamedKeys, name)
		return value.NewContract(clone), true
	default:
		return value.Value{}, false
	}
}

// transferArgs encodes (src, dst, amount) as the argument vector passed to
// the mint contract's "transfer" entry point.
func transferArgs(src, dst [32]byte, amount []byte) []byte {
	out := make([]byte, 0, 64+4+len(amount))
	out = append(out, src[:]...)
	out = append(out, dst[:]...)
	out = append(out, u32le(uint32(len(amount)))...)
	out = append(out, amount...)
	return out
}
