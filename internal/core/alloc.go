package core

// AllocKind 分配来源类别
type AllocKind int

const (
	AllocMalloc AllocKind = iota
	AllocCalloc
	AllocRealloc
	AllocReturned // 由被调函数返回的所有权
)

// String 返回来源名称
func (k AllocKind) String() string {
	switch k {
	case AllocMalloc:
		return "malloc"
	case AllocCalloc:
		return "calloc"
	case AllocRealloc:
		return "realloc"
	case AllocReturned:
		return "returned-from-call"
	}
	return "unknown"
}

// AllocationRecord 分配记录
// 关联持有变量与分配点；free 时置 Freed，但记录本身保留到分析结束，
// 供泄漏报告使用。键用作用域限定的 VarID，不同作用域的同名变量互不影响。
type AllocationRecord struct {
	Owner     VarID
	OwnerName string
	Kind      AllocKind
	Line      int    // 分配行
	Func      string // 分配点所在函数
	FromCall  string // AllocReturned 专用：来源函数名
	Freed     bool
	FreedLine int
}

// AllocationTable 一个文件的分配记录集合
type AllocationTable struct {
	records []*AllocationRecord
	byOwner map[VarID]*AllocationRecord
}

// NewAllocationTable 创建空表
func NewAllocationTable() *AllocationTable {
	return &AllocationTable{byOwner: make(map[VarID]*AllocationRecord)}
}

// Record 登记一次分配；同一变量重新分配时覆盖活动记录但保留历史
func (t *AllocationTable) Record(r *AllocationRecord) {
	t.records = append(t.records, r)
	t.byOwner[r.Owner] = r
}

// Active 返回变量当前的活动分配记录
func (t *AllocationTable) Active(owner VarID) (*AllocationRecord, bool) {
	r, ok := t.byOwner[owner]
	return r, ok
}

// MarkFreed 标记释放
// 无记录的 free 被容忍（外部指针），返回 false 且不产生任何发现
func (t *AllocationTable) MarkFreed(owner VarID, line int) (*AllocationRecord, bool) {
	r, ok := t.byOwner[owner]
	if !ok {
		return nil, false
	}
	if r.Freed {
		// double free：由调用方决定是否报告
		return r, true
	}
	r.Freed = true
	r.FreedLine = line
	return r, true
}

// All 返回全部记录（含已释放的）
func (t *AllocationTable) All() []*AllocationRecord {
	return t.records
}
