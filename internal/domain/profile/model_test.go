package profile

import "testing"

func TestProfileDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{name: "full name", profile: Profile{FirstName: "Ada", LastName: "Lovelace", Username: "ada"}, want: "Ada Lovelace"},
		{name: "first name only", profile: Profile{FirstName: "Ada", Username: "ada"}, want: "Ada"},
		{name: "last name only", profile: Profile{LastName: "Lovelace", Username: "ada"}, want: "Lovelace"},
		{name: "username fallback", profile: Profile{Username: "ada"}, want: "ada"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.profile.DisplayName(); got != tc.want {
				t.Fatalf("DisplayName() = %q, want %q", got, tc.want)
			}
		})
	}
}
