// Package scheduler triggers recurring jobs (robfig/cron) and one-shot
// timers. One-shot timers are upserted by name; a replaced timer never fires.
package scheduler
