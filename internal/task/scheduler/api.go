package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fsubbot/pkg/logx"
)

// AddSchedule parses schedule (see ParseSchedule) and registers it under
// name, replacing any schedule or one-shot timer with the same name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = "@every " + ps.Every.String()
	}
	return s.AddCron(name, spec, timeout, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("parse %q: %w", spec, err)
	}
	s.Remove(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job})
	if s.c == nil {
		// registered on Start
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, job := d.name, d.timeout, d.job
	id, err := s.c.AddFunc(d.spec, func() { s.run(name, timeout, job) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// AddOnce runs job once at the given time. Re-adding a name replaces the
// previous timer; a time in the past fires immediately.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if at.IsZero() {
		return errors.New("at required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if s.base.Err() != nil {
		return errors.New("scheduler stopped")
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.once[name]; ok {
		old.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.onceSeq}
	ver := d.ver
	d.timer = time.AfterFunc(time.Until(at), func() {
		s.tmu.Lock()
		cur, ok := s.once[name]
		if !ok || cur.ver != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()
		s.run(name, timeout, job)
	})
	s.once[name] = d
	return nil
}

// Remove drops a schedule or pending one-shot timer by name.
func (s *Service) Remove(name string) bool {
	removed := false

	s.tmu.Lock()
	if d, ok := s.once[name]; ok {
		d.timer.Stop()
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.defs[:0]
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		out = append(out, d)
	}
	s.defs = out
	return removed
}

// Pending reports whether a one-shot timer with name is armed.
func (s *Service) Pending(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	_, ok := s.once[name]
	return ok
}
