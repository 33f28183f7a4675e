package mempool

import "testing"

func TestGlobalAllocAndFree(t *testing.T) {
	ds := CreateDatastore(64, 0)
	a := ds.Attach(Global)

	cell, ok := a.Alloc()
	if !ok {
		t.Fatal("expected alloc to succeed")
	}
	if len(cell) != 64 {
		t.Fatalf("expected cell of size 64, got %d", len(cell))
	}
	cell[0] = 0xAB
	a.Free(cell)

	cell2, ok := a.Alloc()
	if !ok {
		t.Fatal("expected alloc to succeed")
	}
	if len(cell2) != 64 {
		t.Fatalf("expected cell of size 64, got %d", len(cell2))
	}
}

func TestGlobalAllocatorNeverExhausts(t *testing.T) {
	ds := CreateDatastore(32, 0)
	a := ds.Attach(Global)

	var cells [][]byte
	for i := 0; i < 1000; i++ {
		cell, ok := a.Alloc()
		if !ok {
			t.Fatalf("global allocator exhausted at iteration %d", i)
		}
		cells = append(cells, cell)
	}
	for _, c := range cells {
		a.Free(c)
	}
}

func TestPerCPUAllocExhaustion(t *testing.T) {
	ds := CreateDatastore(16, 4)
	a := ds.Attach(PerCPU)

	var cells [][]byte
	for i := 0; i < 4; i++ {
		cell, ok := a.Alloc()
		if !ok {
			t.Fatalf("expected alloc %d to succeed", i)
		}
		cells = append(cells, cell)
	}

	if _, ok := a.Alloc(); ok {
		t.Fatal("expected pool to be exhausted")
	}

	a.Free(cells[0])
	cell, ok := a.Alloc()
	if !ok {
		t.Fatal("expected alloc to succeed after free")
	}
	if len(cell) != 16 {
		t.Fatalf("expected cell of size 16, got %d", len(cell))
	}
}

func TestPerCPUAllocatorsAreIndependent(t *testing.T) {
	ds := CreateDatastore(8, 2)
	a1 := ds.Attach(PerCPU)
	a2 := ds.Attach(PerCPU)

	if _, ok := a1.Alloc(); !ok {
		t.Fatal("a1 alloc should succeed")
	}
	if _, ok := a1.Alloc(); !ok {
		t.Fatal("a1 second alloc should succeed")
	}
	if _, ok := a1.Alloc(); ok {
		t.Fatal("a1 should be exhausted")
	}

	if _, ok := a2.Alloc(); !ok {
		t.Fatal("a2 should be unaffected by a1's exhaustion")
	}
}

func TestPerCPUFreeDoesNotOvergrowPastCapacity(t *testing.T) {
	ds := CreateDatastore(8, 1)
	a := ds.Attach(PerCPU)

	cell, ok := a.Alloc()
	if !ok {
		t.Fatal("expected alloc to succeed")
	}
	a.Free(cell)
	a.Free(cell) // double free should be a no-op, not corrupt the stack

	c1, ok := a.Alloc()
	if !ok {
		t.Fatal("expected alloc to succeed")
	}
	if _, ok := a.Alloc(); ok {
		t.Fatal("expected pool to be exhausted after single-capacity reuse")
	}
	_ = c1
}

func TestCellSize(t *testing.T) {
	ds := CreateDatastore(128, 16)
	if ds.CellSize() != 128 {
		t.Fatalf("expected cell size 128, got %d", ds.CellSize())
	}
}
