package fence

// Pair is the fence state of one buffer.
//
// Read covers every task that has read the buffer since the last write, and
// Write covers every task that has written it. A reader must wait for Write;
// a writer must wait for both. Pair is not synchronized: it is only touched
// by the goroutine that schedules tasks.
type Pair struct {
	Read  *Fence
	Write *Fence
}

// ReadPrerequisite is what a task reading the buffer must wait for.
func (p *Pair) ReadPrerequisite() *Fence {
	return p.Write
}

// WritePrerequisite is what a task writing the buffer must wait for.
func (p *Pair) WritePrerequisite() *Fence {
	return Join(p.Read, p.Write)
}

// AddReader records task t as a reader scheduled after the current state.
func (p *Pair) AddReader(t *Fence) {
	p.Read = Join(p.Read, t)
}

// SetWriter records task t as the latest writer. The write also becomes the
// new baseline for readers.
func (p *Pair) SetWriter(t *Fence) {
	p.Write = t
	p.Read = t
}

// All returns a fence covering every pending use of the buffer.
func (p *Pair) All() *Fence {
	return Join(p.Read, p.Write)
}

// Wait blocks until every pending use of the buffer has finished, then
// resets the pair to the complete state.
func (p *Pair) Wait() {
	p.All().Wait()
	p.Read, p.Write = nil, nil
}

// Idle reports whether no task using the buffer is still running.
func (p *Pair) Idle() bool {
	return p.Read.IsComplete() && p.Write.IsComplete()
}
