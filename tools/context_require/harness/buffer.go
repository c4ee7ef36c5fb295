package harness

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// bufferSource defines a small Buffer on top of Uint8Array, covering what
// bundler-shimmed browser code usually touches. Byte conversions are done in
// Go by decode and encode.
const bufferSource = `(function (global, decode, encode) {
  function wrap(bytes) {
    return Object.setPrototypeOf(bytes, Buffer.prototype);
  }
  function Buffer(value, encoding) {
    return typeof value === "number" ? Buffer.alloc(value) : Buffer.from(value, encoding);
  }
  Buffer.prototype = Object.create(Uint8Array.prototype);
  Buffer.prototype.constructor = Buffer;

  Buffer.from = function (value, encoding) {
    if (typeof value === "string") {
      return wrap(new Uint8Array(decode(value, encoding || "utf8")));
    }
    if (value instanceof ArrayBuffer) {
      return wrap(new Uint8Array(value.slice(0)));
    }
    return wrap(Uint8Array.from(value));
  };
  Buffer.alloc = function (size, fill) {
    var buf = wrap(new Uint8Array(size));
    if (fill !== undefined) {
      buf.fill(fill);
    }
    return buf;
  };
  Buffer.isBuffer = function (value) {
    return value instanceof Buffer;
  };
  Buffer.byteLength = function (value, encoding) {
    return typeof value === "string" ? decode(value, encoding || "utf8").byteLength : value.byteLength;
  };
  Buffer.concat = function (list) {
    var size = 0;
    list.forEach(function (b) { size += b.length; });
    var out = Buffer.alloc(size), offset = 0;
    list.forEach(function (b) { out.set(b, offset); offset += b.length; });
    return out;
  };

  Buffer.prototype.toString = function (encoding) {
    return encode(this.buffer.slice(this.byteOffset, this.byteOffset + this.byteLength), encoding || "utf8");
  };
  Buffer.prototype.toJSON = function () {
    return {type: "Buffer", data: Array.prototype.slice.call(this)};
  };
  Buffer.prototype.equals = function (other) {
    if (this.length !== other.length) {
      return false;
    }
    for (var i = 0; i < this.length; i++) {
      if (this[i] !== other[i]) {
        return false;
      }
    }
    return true;
  };
  Buffer.prototype.subarray = function (start, end) {
    return wrap(Uint8Array.prototype.subarray.call(this, start, end));
  };
  Buffer.prototype.slice = Buffer.prototype.subarray;

  global.Buffer = Buffer;
})`

// installBuffer defines the Buffer global.
func (h *Harness) installBuffer() error {
	vm := h.vm
	fnValue, err := vm.RunString(bufferSource)
	if err != nil {
		return err
	}
	install, ok := goja.AssertFunction(fnValue)
	if !ok {
		return fmt.Errorf("buffer setup is not a function")
	}

	decode := func(call goja.FunctionCall) goja.Value {
		data, err := decodeString(call.Argument(0).String(), call.Argument(1).String())
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return vm.ToValue(vm.NewArrayBuffer(data))
	}
	encode := func(call goja.FunctionCall) goja.Value {
		ab, ok := call.Argument(0).Export().(goja.ArrayBuffer)
		if !ok {
			panic(vm.NewTypeError("argument must be an ArrayBuffer"))
		}
		s, err := encodeBytes(ab.Bytes(), call.Argument(1).String())
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return vm.ToValue(s)
	}

	_, err = install(goja.Undefined(), vm.GlobalObject(), vm.ToValue(decode), vm.ToValue(encode))
	return err
}

func decodeString(s, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "utf8", "utf-8":
		return []byte(s), nil
	case "hex":
		return hex.DecodeString(s)
	case "base64":
		return base64.StdEncoding.DecodeString(padBase64(s))
	case "base64url":
		return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	case "latin1", "binary", "ascii":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown encoding: %s", encoding)
}

func encodeBytes(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "utf8", "utf-8":
		return string(data), nil
	case "hex":
		return hex.EncodeToString(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	case "base64url":
		return base64.RawURLEncoding.EncodeToString(data), nil
	case "latin1", "binary":
		var b strings.Builder
		for _, c := range data {
			b.WriteRune(rune(c))
		}
		return b.String(), nil
	case "ascii":
		var b strings.Builder
		for _, c := range data {
			b.WriteByte(c & 0x7f)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unknown encoding: %s", encoding)
}

// padBase64 restores padding stripped by some encoders.
func padBase64(s string) string {
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return s
}
