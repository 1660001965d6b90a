/*Command bio-clusense separates the long reads of a mixed sample, such as an
  amplicon from a heterozygous locus, into per-haplotype groups and writes a
  consensus sequence for each group.

  Usage:
    bio-clusense run -o outdir -g 25 reads.fa reference.fa
    bio-clusense consensus -hp reads.fa seed.fa out.fa
    bio-clusense groups outdir

  Options may also be read from a YAML file with -config; flags given on the
  command line take precedence over the file.
*/
package main
