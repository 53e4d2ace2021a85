package assignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		records []RoleAssignment
		want    Scope
		ok      bool
	}{
		{
			name: "no assignments",
			ok:   false,
		},
		{
			name:    "only director",
			records: []RoleAssignment{Director{}, Administrator{}, Logistics{ID: 1, Day: "Domingo", Current: true}},
			ok:      false,
		},
		{
			name: "current contact wins over current teacher",
			records: []RoleAssignment{
				Teacher{ID: 9, StageLabel: "Devocionales 1", Day: "Martes", Current: true, CreatedAt: t0.Add(time.Hour)},
				Contact{ID: 2, StageLabel: "Semillas 2", Day: "Domingo", Week: 3, Current: true, CreatedAt: t0},
			},
			want: Scope{Base: BaseSemillas, Module: 2, HasModule: true, Day: "Domingo", Week: 3},
			ok:   true,
		},
		{
			name: "current teacher wins over newer historical contact",
			records: []RoleAssignment{
				Contact{ID: 5, StageLabel: "Semillas 1", Day: "Domingo", Week: 1, CreatedAt: t0.Add(48 * time.Hour)},
				Teacher{ID: 3, StageLabel: "Restauración", Day: "Sábado", Current: true, CreatedAt: t0},
			},
			want: Scope{Base: BaseRestauracion, Module: 1, Day: "Sábado"},
			ok:   true,
		},
		{
			name: "newest current contact among several",
			records: []RoleAssignment{
				Contact{ID: 1, StageLabel: "Semillas 1", Day: "Domingo", Week: 1, Current: true, CreatedAt: t0},
				Contact{ID: 2, StageLabel: "Semillas 3", Day: "Domingo", Week: 2, Current: true, CreatedAt: t0.Add(time.Minute)},
			},
			want: Scope{Base: BaseSemillas, Module: 3, HasModule: true, Day: "Domingo", Week: 2},
			ok:   true,
		},
		{
			name: "fallback to newest across kinds",
			records: []RoleAssignment{
				Contact{ID: 1, StageLabel: "Semillas 1", Day: "Domingo", Week: 1, CreatedAt: t0},
				Teacher{ID: 7, StageLabel: "Devocionales 2", Day: "Jueves", CreatedAt: t0.Add(time.Hour)},
			},
			want: Scope{Base: BaseDevocionales, Module: 2, HasModule: true, Day: "Jueves"},
			ok:   true,
		},
		{
			name: "fallback tie broken by highest id",
			records: []RoleAssignment{
				Teacher{ID: 4, StageLabel: "Devocionales 2", Day: "Jueves", CreatedAt: t0},
				Contact{ID: 8, StageLabel: "Semillas 4", Day: "Domingo", Week: 5, CreatedAt: t0},
			},
			want: Scope{Base: BaseSemillas, Module: 4, HasModule: true, Day: "Domingo", Week: 5},
			ok:   true,
		},
		{
			name: "malformed label without number",
			records: []RoleAssignment{
				Contact{ID: 1, StageLabel: "Semillas", Day: "Domingo", Week: 2, Current: true, CreatedAt: t0},
			},
			want: Scope{Base: BaseSemillas, Module: 1, Day: "Domingo", Week: 2},
			ok:   true,
		},
		{
			name: "unknown group never governs",
			records: []RoleAssignment{
				Contact{ID: 9, StageLabel: "Coro 1", Day: "Domingo", Week: 2, Current: true, CreatedAt: t0.Add(time.Hour)},
				Teacher{ID: 1, StageLabel: "Semillas 1", Day: "Martes", CreatedAt: t0},
			},
			want: Scope{Base: BaseSemillas, Module: 1, HasModule: true, Day: "Martes"},
			ok:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Resolve(tc.records)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestScopeString(t *testing.T) {
	s := Scope{Base: BaseSemillas, Module: 2, HasModule: true, Day: "Domingo", Week: 3}
	assert.Equal(t, "Semillas/2/domingo/w3", s.String())
	s = Scope{Base: BaseRestauracion, Module: 1, Day: "Sábado"}
	assert.Equal(t, "Restauracion/-/sabado/w0", s.String())
}
