// Package luagen renders compiled tables as read-only Lua modules.
//
// A module loads to a proxy over its rows:
//
//	local item = require("item")
//	item[1]          -- first row
//	item[1001]       -- row whose key column encodes to 1001 (wins over position)
//	item["sword"]    -- string keys work the same way
//	item[1].price    -- field by column name
//	item[1][3]       -- field by position
//	item.name        -- table name, unless a key is called "name"
//
// Key lookup shadows position. In a table keyed by small integers,
// item[1] is the row whose key is 1, not necessarily the first row; use
// ipairs(item) (or pairs) to walk rows by position.
//
// Every assignment into the module, a row or a nested value raises
// "attempt to modify read-only table".
package luagen

import (
	"bytes"
	"fmt"

	"github.com/JonMunkholm/tablegen/internal/core"
)

// Module is the Lua source of one table.
type Module struct {
	Name   string
	Source []byte
}

// FileName returns the file the module is written to.
func (m Module) FileName() string {
	return m.Name + ".lua"
}

// Emit renders t as a Lua module.
// It fails with core.ErrMissingPrimaryKey when no column can serve as key.
func Emit(t *core.CompiledTable) ([]byte, error) {
	key, ok := t.PrimaryKey()
	if !ok {
		return nil, core.ValidationError{
			Table: t.Name,
			Col:   -1,
			Err:   fmt.Errorf("%w: tag one column allkey, serverkey, clientkey or all", core.ErrMissingPrimaryKey),
		}
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "-- Code generated by tablegen from sheet %s. DO NOT EDIT.\n\n", t.Name)

	b.WriteString("local data = {\n")
	for i, row := range t.Rows {
		fmt.Fprintf(&b, "    [%d] = {", i+1)
		for j, v := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, " [%d] = %s", j+1, core.EncodeLua(v))
		}
		if len(row) > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("},\n")
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "local s_name = %s\n\n", core.QuoteLua(t.Name))

	b.WriteString("local s_id = {")
	seen := make(map[string]bool, len(t.Rows))
	for i, row := range t.Rows {
		lit, ok := keyLiteral(row[key])
		if !ok || seen[lit] {
			continue
		}
		seen[lit] = true
		fmt.Fprintf(&b, " [%s] = %d,", lit, i+1)
	}
	b.WriteString(" }\n\n")

	b.WriteString("local s_key = {")
	for j, c := range t.Columns {
		fmt.Fprintf(&b, " [%s] = %d,", core.QuoteLua(c.Name), j+1)
	}
	b.WriteString(" }\n\n")

	b.WriteString(wrapper)
	return b.Bytes(), nil
}

// keyLiteral returns the index literal of a key cell. Composite values and
// NaN cannot be looked up by value, so they are left out of the index and
// stay reachable by position only. The first row wins on duplicate keys.
func keyLiteral(v core.Value) (string, bool) {
	if v.Type.Shape() != core.ShapeScalar {
		return "", false
	}
	lit := core.EncodeLua(v)
	if lit == "(0/0)" {
		return "", false
	}
	return lit, true
}

// EmitAll renders every table. Tables that fail do not stop the others;
// all failures are returned together as a *core.CompileErrors.
func EmitAll(tables []*core.CompiledTable) ([]Module, error) {
	var errs core.CompileErrors
	out := make([]Module, 0, len(tables))
	for _, t := range tables {
		src, err := Emit(t)
		if err != nil {
			errs.Add(err)
			continue
		}
		out = append(out, Module{Name: t.Name, Source: src})
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const wrapper = `local function readonly()
    error("attempt to modify read-only table", 2)
end

local proxies = setmetatable({}, { __mode = "k" })

local function freeze(value, names)
    if type(value) ~= "table" then
        return value
    end
    local proxy = proxies[value]
    if proxy then
        return proxy
    end
    proxy = setmetatable({}, {
        __index = function(_, k)
            local j = names and names[k]
            if j then
                return freeze(value[j])
            end
            return freeze(value[k])
        end,
        __newindex = readonly,
        __len = function()
            return #value
        end,
        __pairs = function()
            return function(_, k)
                local nk, nv = next(value, k)
                return nk, freeze(nv)
            end, proxy, nil
        end,
        __ipairs = function()
            return function(_, i)
                i = i + 1
                local v = value[i]
                if v ~= nil then
                    return i, freeze(v)
                end
            end, proxy, 0
        end,
    })
    proxies[value] = proxy
    return proxy
end

local rows = {}
for i, row in ipairs(data) do
    rows[i] = freeze(row, s_key)
end

local config = setmetatable({}, {
    __index = function(_, k)
        local i = s_id[k]
        if i then
            return rows[i]
        end
        if type(k) == "number" then
            return rows[k]
        end
        if k == "name" then
            return s_name
        end
        return nil
    end,
    __newindex = readonly,
    __len = function()
        return #rows
    end,
    __pairs = function(t)
        return function(_, i)
            i = (i or 0) + 1
            local v = rows[i]
            if v ~= nil then
                return i, v
            end
        end, t, nil
    end,
    __ipairs = function(t)
        return function(_, i)
            i = i + 1
            local v = rows[i]
            if v ~= nil then
                return i, v
            end
        end, t, 0
    end,
})

return config
`
