package subject

import "testing"

func TestGuessQuotedFilename(t *testing.T) {
	name, confirmed := Guess(`[1/20] "my.show.s01e02.mkv" yEnc (1/150)`)
	if !confirmed {
		t.Fatalf("expected confirmed match for quoted filename")
	}
	if name != "my.show.s01e02.mkv" {
		t.Fatalf("got %q", name)
	}
}

func TestGuessFallbackStripsCountAndYenc(t *testing.T) {
	name, confirmed := Guess(`(1/50) some.release.name.r01 yEnc`)
	if confirmed {
		t.Fatalf("expected fallback (unconfirmed) match")
	}
	if name != "some.release.name.r01" {
		t.Fatalf("got %q", name)
	}
}

func TestGuessSanitizesBadCharacters(t *testing.T) {
	name, _ := Guess(`"weird:name/with*bad?chars.mkv"`)
	if name != "weird_name_with_bad_chars.mkv" {
		t.Fatalf("got %q", name)
	}
}

func TestIsPar2(t *testing.T) {
	if !IsPar2("archive.PAR2") {
		t.Fatalf("expected case-insensitive match")
	}
	if IsPar2("archive.rar") {
		t.Fatalf("expected false for non-par2")
	}
}

func TestIsPar2Volume(t *testing.T) {
	if !IsPar2Volume("archive.vol003+04.par2") {
		t.Fatalf("expected volume match")
	}
	if IsPar2Volume("archive.par2") {
		t.Fatalf("base index file is not a volume")
	}
}
