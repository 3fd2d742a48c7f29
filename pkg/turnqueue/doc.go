// Package turnqueue serializes conversation turns per session. Each
// session gets its own lane in which turns run one at a time in
// arrival order, while turns for different sessions proceed in
// parallel. Lanes are created on demand and reclaimed once drained,
// so memory stays proportional to the number of sessions with work
// in flight.
package turnqueue
