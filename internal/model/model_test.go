package model

import (
	"strings"
	"testing"
	"time"
)

func validReport() Report {
	return Report{
		ID:           1700000000000,
		Employee:     "jdoe",
		EmployeeName: "Jane Doe",
		Area:         "North Field",
		AreaCode:     "NF-01",
		NumberBefore: 3,
		Status:       StatusBeforeOnly,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleEmployee, RoleSupervisor} {
		if !r.Valid() {
			t.Errorf("expected role %s to be valid", r)
		}
	}
	if Role("manager").Valid() {
		t.Error("expected unknown role to be invalid")
	}
}

func TestReportValidateBounds(t *testing.T) {
	r := validReport()
	if err := r.Validate(); err != nil {
		t.Fatalf("valid report rejected: %v", err)
	}

	r.NumberBefore = 9
	if err := r.Validate(); err == nil {
		t.Error("expected numberBefore > 8 to be rejected")
	}
	r.NumberBefore = -1
	if err := r.Validate(); err == nil {
		t.Error("expected negative numberBefore to be rejected")
	}
}

func TestReportValidatePhotoCap(t *testing.T) {
	r := validReport()
	for i := 0; i <= MaxPhotosPerPhase; i++ {
		r.BeforePhotos = append(r.BeforePhotos, Photo{
			ID:       "p",
			ReportID: r.ID,
			Type:     PhotoBefore,
			Index:    i,
			Status:   PhotoPending,
		})
	}
	if err := r.Validate(); err == nil {
		t.Errorf("expected %d before photos to be rejected", MaxPhotosPerPhase+1)
	}
}

func TestReportComplete(t *testing.T) {
	r := validReport()
	now := time.Now()

	if err := r.Complete(5, nil, now); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if r.Status != StatusComplete {
		t.Errorf("expected status %s, got %s", StatusComplete, r.Status)
	}
	if r.NumberAfter == nil || *r.NumberAfter != 5 {
		t.Errorf("expected numberAfter 5, got %v", r.NumberAfter)
	}
	if r.CompletionDate == nil {
		t.Error("expected completionDate to be set")
	}
}

func TestReportCompleteTwice(t *testing.T) {
	r := validReport()
	now := time.Now()

	if err := r.Complete(5, nil, now); err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}
	err := r.Complete(6, nil, now)
	if err == nil {
		t.Fatal("expected second Complete to fail")
	}
	if *r.NumberAfter != 5 {
		t.Errorf("second Complete mutated numberAfter to %d", *r.NumberAfter)
	}
}

func TestReportCompleteBounds(t *testing.T) {
	r := validReport()
	if err := r.Complete(9, nil, time.Now()); err == nil {
		t.Error("expected numberAfter > 8 to be rejected")
	}
	if r.Status != StatusBeforeOnly {
		t.Errorf("rejected Complete mutated status to %s", r.Status)
	}
}

func TestUserValidate(t *testing.T) {
	u := User{Username: "jdoe", Password: "secret", Role: RoleEmployee}
	if err := u.Validate(); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}

	u.Password = ""
	err := u.Validate()
	if err == nil {
		t.Fatal("expected missing password to be rejected")
	}
	if !strings.Contains(err.Error(), "password") {
		t.Errorf("unexpected error: %v", err)
	}
}
