package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
)

func readRows(path string) ([]roster.ImportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening rows file")
	}
	defer f.Close()

	var rows []roster.ImportRow
	if err = json.NewDecoder(f).Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "decoding rows file")
	}
	return rows, nil
}

func (cli *commandLine) importStudents(path string) error {
	rows, err := readRows(path)
	if err != nil {
		return err
	}
	res, err := cli.roster.ImportStudents(context.Background(), rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d students written, %d rombels and %d programs touched, %d rows skipped\n",
		res.StudentsWritten, res.RombelsTouched, res.ProgramsTouched, res.Skipped)
	return nil
}

func (cli *commandLine) rebuild() error {
	res, err := cli.roster.RebuildProjections(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "rebuilt %d rombels and %d programs from %d students\n", res.Rombels, res.Programs, res.Students)
	return nil
}

func (cli *commandLine) sync(classID string) error {
	s, err := cli.classes.ResyncFromRombel(context.Background(), classID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %d students\n", s.ID, len(s.DaftarSiswa))
	return nil
}

func (cli *commandLine) printRecap(classID string, p recap.Period) error {
	r, err := cli.recap.MonthlyRecap(context.Background(), classID, p)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cli.out, 0, 0, 1, ' ', 0)
	for _, line := range r.Table() {
		fmt.Fprintln(w, strings.Join(line, "\t"))
	}
	return w.Flush()
}
