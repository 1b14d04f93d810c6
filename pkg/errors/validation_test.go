package errors

import "testing"

func TestValidatePackID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Core", false},
		{"underscores", "Base_Pack", false},
		{"dotted", "HelloWorld.v2", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 300)), true},
		{"traversal", "..", true},
		{"slash", "Packs/Core", true},
		{"space", "My Pack", true},
		{"leading dash", "-Core", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPackID) {
				t.Errorf("ValidatePackID(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestValidateDepth(t *testing.T) {
	for _, d := range []int{1, 3, MaxRelationshipDepth} {
		if err := ValidateDepth(d); err != nil {
			t.Errorf("ValidateDepth(%d) = %v", d, err)
		}
	}
	for _, d := range []int{0, -1, MaxRelationshipDepth + 1} {
		if err := ValidateDepth(d); !Is(err, ErrCodeInvalidDepth) {
			t.Errorf("ValidateDepth(%d) = %v, want INVALID_DEPTH", d, err)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://storage.example.com/graphs", false},
		{"http://localhost:8080", false},
		{"", true},
		{"ftp://example.com", true},
		{"storage.example.com", true},
	}
	for _, tt := range tests {
		if err := ValidateURL(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid pack", "Packs/Core", false},
		{"valid item", "Packs/Core/Scripts/DBotPredictPhishingWords/DBotPredictPhishingWords.yml", false},
		{"valid filename only", "README.md", false},
		{"valid with dots", "Packs/Core/ReleaseNotes/1_2_3.md", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 600)), true},
		{"absolute path", "/etc/passwd", true},
		{"path traversal", "../../../etc/passwd", true},
		{"path traversal middle", "foo/../bar", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidatePath(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeInvalidInput,
		ErrCodeInvalidPath,
		ErrCodeInvalidMarketplace,
		ErrCodeInvalidContentType,
		ErrCodeInvalidRelationship,
		ErrCodeInvalidDepth,
		ErrCodeInvalidPackID,
		ErrCodeNotFound,
		ErrCodePackNotFound,
		ErrCodeFileNotFound,
		ErrCodePackMetadata,
		ErrCodeSnapshot,
		ErrCodeGit,
		ErrCodeNetwork,
		ErrCodeTimeout,
		ErrCodeStore,
		ErrCodeReferentialOrder,
		ErrCodeInternal,
		ErrCodeUnsupported,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
