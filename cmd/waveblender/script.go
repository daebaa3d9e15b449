package main

import (
	"fmt"

	"github.com/spf13/cast"
	lua "github.com/yuin/gopher-lua"

	"github.com/InboraStudio/waveblender"
)

// triggerScript drives source triggers from a Lua file. The script may define
// on_tick(t), which is called with the simulated time before every tick, and
// may call trigger(i[, amplitude]) with a 1-based source index.
type triggerScript struct {
	L      *lua.LState
	engine *waveblender.Engine
	onTick lua.LValue
}

func loadScript(path string, e *waveblender.Engine) (*triggerScript, error) {
	s := &triggerScript{L: lua.NewState(), engine: e}
	s.L.SetGlobal("trigger", s.L.NewFunction(s.trigger))
	s.L.SetGlobal("sources", lua.LNumber(e.SourceSlots()))
	if err := s.L.DoFile(path); err != nil {
		s.L.Close()
		return nil, fmt.Errorf("loading script %s: %w", path, err)
	}
	if fn := s.L.GetGlobal("on_tick"); fn.Type() == lua.LTFunction {
		s.onTick = fn
	}
	return s, nil
}

func (s *triggerScript) trigger(L *lua.LState) int {
	i, err := cast.ToIntE(L.CheckAny(1).String())
	if err != nil {
		L.ArgError(1, "source index must be an integer")
		return 0
	}
	if L.GetTop() >= 2 {
		err = s.engine.TriggerWithAmplitude(i-1, float64(L.CheckNumber(2)))
	} else {
		err = s.engine.Trigger(i - 1)
	}
	if err != nil {
		L.RaiseError("trigger(%d): %v", i, err)
	}
	return 0
}

// tick runs on_tick(t) if the script defines it.
func (s *triggerScript) tick(t float64) error {
	if s == nil || s.onTick == nil {
		return nil
	}
	return s.L.CallByParam(lua.P{Fn: s.onTick, NRet: 0, Protect: true}, lua.LNumber(t))
}

func (s *triggerScript) Close() {
	if s != nil {
		s.L.Close()
	}
}
