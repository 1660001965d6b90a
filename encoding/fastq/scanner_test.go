package fastq

import (
	"reflect"
	"strings"
	"testing"
)

const fq = `@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG
ATACAGGCCTGANCCACTGTGCCCAGNCTANNTNATTANTGAANANAGAATNGTTNTAAATANANNNNNTNTNNNC
+
AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEE#EEEE#E#EEEEE#EEE#EEEAEE#A#####E#E###E
@NB500956:89:HW2FHBGX2:1:11101:13871:1070 1:N:0:ATCACG
CTCAACTCTGAGNCAGACAGAAATACNTTTNNTNTGAGTTACANCNTTCTTTTTCNACATATNCNNNNNTNGNNNT
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#EEE##E#EEEEEEEEE#E#EEEEEEEEE#EAEEEE#A#####E#A###E
@NB500956:89:HW2FHBGX2:1:11101:9975:1070 1:N:0:ATCACG
GAGTAACCACGTNCCCATGGCCACAGNTGANNGNGTCACACCTNANCCGGGAGAGNCAATCCNGNNNNNGNANNNC
+
AAAAAEEEEEEE#EEEEEEEEEAEEE#EEA##E#EEEEEEEE<#E#<EEEEEEEE#<EEEA/#/#####A#E###A
@NB500956:89:HW2FHBGX2:1:11101:20247:1070 1:N:0:ATCACG
GATCGGAAGAGCNCACGTCTGAACTCNAGTNNCNTCCCGATCTNGNATGCCGTCTNCTGCTTNANNNNNANANNNG
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#AEE##E#A////6AE<#E#EEEEEEEEA#A/EE/E#E#####/#E###E
@NB500956:89:HW2FHBGX2:1:11101:17754:1070 1:N:0:ATCACG
CAAGCAACTTACNTTACTTTAGGCTGNAAANNGNCTGCCTGAANTNCCTGCTCACNAATCCCNCNNNNNCNTNNNT
+
AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEEEEEEE#E#EEEEEEEEE#EAEAEA#/#####E#A###E
@NB500956:89:HW2FHBGX2:1:11101:26223:1070 1:N:0:ATCACG
TCAATTTCAGAACTTTTTATTGGTCTNTTCNNGNATTCATCTTNTNCCTGGTTTANTCTTGGNANNNNNTNTNNNT
+
AAAAAEEEEEEEEEEEEEEEEEEEEE#EEA##E#EEEEEEEEE#E#<EAEEEEEE#EEEEEE#E#####E#E###E
`

func scanErr(s string) error {
	scan := NewScanner(strings.NewReader(s))
	for scan.Scan() {
	}
	return scan.Err()
}

func TestFASTQ(t *testing.T) {
	s := NewScanner(strings.NewReader(fq))
	if !s.Scan() {
		t.Fatal(s.Err())
	}
	expect := Read{
		Name: "NB500956:89:HW2FHBGX2:1:11101:25648:1069",
		Seq:  "ATACAGGCCTGANCCACTGTGCCCAGNCTANNTNATTANTGAANANAGAATNGTTNTAAATANANNNNNTNTNNNC",
		Qual: "AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEE#EEEE#E#EEEEE#EEE#EEEAEE#A#####E#E###E",
	}
	if got, want := s.Read(), expect; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var n int
	for s.Scan() {
		n++
	}
	if got, want := n, 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := s.Err(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if s.Scan() {
		t.Error("scan after the end of the stream succeeded")
	}
}

func TestCRLF(t *testing.T) {
	s := NewScanner(strings.NewReader("@r1 ccs\r\nACGT\r\n+\r\nIIII\r\n\r\n@r2\nGG\n+r2\n##\n"))
	var reads []Read
	for s.Scan() {
		reads = append(reads, s.Read())
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	want := []Read{{"r1", "ACGT", "IIII"}, {"r2", "GG", "##"}}
	if !reflect.DeepEqual(reads, want) {
		t.Errorf("got %v, want %v", reads, want)
	}
}

func TestBadFASTQ(t *testing.T) {
	for _, test := range []struct {
		in   string
		want error
	}{
		{"12312#", ErrInvalid},
		{"@\nACGT\n+\nIIII\n", ErrInvalid},
		{"@r1\nACGT\n-\nIIII\n", ErrInvalid},
		{"@r1\nACGT\n+\nIII\n", ErrInvalid},
		{"@1234\n123", ErrShort},
		{"@1234\nACGT\n+\n", ErrShort},
		{"", nil},
	} {
		if got := scanErr(test.in); got != test.want {
			t.Errorf("%q: got %v, want %v", test.in, got, test.want)
		}
	}
}
