package slots

import (
	"testing"

	"roombook/internal/civil"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name          string
		schedule      Schedule
		expectedCount int
		wantErr       bool
	}{
		{
			name:          "default office day",
			schedule:      DefaultSchedule(),
			expectedCount: 18, // 4h morning + 5h afternoon, 2 slots per hour
		},
		{
			name: "no lunch break",
			schedule: Schedule{
				StartTime:   "10:00",
				EndTime:     "12:00",
				SlotMinutes: 30,
			},
			expectedCount: 4,
		},
		{
			name: "60 minute slots",
			schedule: Schedule{
				StartTime:   "09:00",
				EndTime:     "12:00",
				SlotMinutes: 60,
			},
			expectedCount: 3,
		},
		{
			name: "trailing partial slot dropped",
			schedule: Schedule{
				StartTime:   "09:00",
				EndTime:     "10:45",
				SlotMinutes: 30,
			},
			expectedCount: 3,
		},
		{
			name:     "end before start",
			schedule: Schedule{StartTime: "18:00", EndTime: "08:00", SlotMinutes: 30},
			wantErr:  true,
		},
		{
			name:     "bad start",
			schedule: Schedule{StartTime: "8h", EndTime: "18:00", SlotMinutes: 30},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.schedule)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.expectedCount {
				t.Errorf("expected %d slots, got %d", tt.expectedCount, len(got))
			}

			if tt.schedule.LunchStart != "" {
				lunchStart := civil.MustTimeOfDay(tt.schedule.LunchStart)
				lunchEnd := civil.MustTimeOfDay(tt.schedule.LunchEnd)
				for _, s := range got {
					if s.Overlaps(lunchStart, lunchEnd) {
						t.Errorf("lunch slot %s should not be generated", s)
					}
				}
			}
		})
	}
}

func TestDefaultCatalogShape(t *testing.T) {
	c := DefaultCatalog()
	all := c.All()

	if all[0].Start.String() != "08:00" || all[0].ID != 1 {
		t.Errorf("first slot = %+v", all[0])
	}
	if last := all[len(all)-1]; last.End.String() != "18:00" || last.ID != 18 {
		t.Errorf("last slot = %+v", last)
	}
	if s, ok := c.Get(9); !ok || s.Start.String() != "13:00" {
		t.Errorf("slot 9 should open the afternoon, got %+v", s)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID != all[i-1].ID+1 {
			t.Fatalf("ids not sequential at %d", i)
		}
	}
}

func TestCatalogSelect(t *testing.T) {
	c := DefaultCatalog()

	found, unknown := c.Select([]int{3, 1, 99, 3})
	if len(found) != 2 || found[0].ID != 1 || found[1].ID != 3 {
		t.Errorf("found = %+v", found)
	}
	if len(unknown) != 1 || unknown[0] != 99 {
		t.Errorf("unknown = %v", unknown)
	}
}
